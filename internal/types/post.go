package types

// Sentinel values substituted when an expected field cannot be extracted.
// Downstream consumers (and the WXR importer) see these literals verbatim.
const (
	NoTitle       = "No Title"
	NoLink        = "No Link"
	NoComment     = "No Comment"
	NoDate        = "NO DATE"
	NoProfileLink = "No Profile Link"
	UnknownAuthor = "Unknown Author"
)

// Post is one journal entry extracted from an archive page.
//
// Date holds either a canonical "2006-01-02 15:04:05" timestamp or the raw
// string the page rendered when normalization failed; the export layer routes
// the latter to the diversion ledger. Content is the fragment's inner HTML,
// verbatim and unsanitized.
type Post struct {
	Title    string
	Link     string
	Date     string
	Content  string
	Comments []Comment
}

// Comment is one comment block discovered on a post's permalink page.
//
// ID is the remote numeric identifier when the resolver recovered one, or a
// locally assigned fallback counter value when it did not. ParentID empty
// means the comment replies to the post itself. PostID is assigned at export
// time, once the owning post receives its per-year identifier.
type Comment struct {
	ID                string
	PostID            string
	ParentID          string
	Author            string
	AuthorProfileLink string
	Date              string
	Link              string
	Text              string
}

// IndexRow is one line of the run's flat index: which chunk file a post
// ended up in.
type IndexRow struct {
	Title     string
	Date      string
	ChunkFile string
}
