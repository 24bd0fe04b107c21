package export

import "encoding/xml"

// WXR 1.2 export document. Element names carry their namespace prefixes
// literally; the xmlns declarations on the root keep the output valid for
// the WordPress importer.
const (
	wxrVersion         = "1.2"
	channelTitle       = "LiveJournal Export"
	channelDescription = "Exported from LiveJournal"

	contentNS = "http://purl.org/rss/1.0/modules/content/"
	dcNS      = "http://purl.org/dc/elements/1.1/"
	wpNS      = "http://wordpress.org/export/1.2/"
)

// AuthorAttribution is the fixed dc:creator written for every exported post.
const AuthorAttribution = "AVGS"

type wxrDocument struct {
	XMLName   xml.Name   `xml:"rss"`
	Version   string     `xml:"version,attr"`
	ContentNS string     `xml:"xmlns:content,attr"`
	DCNS      string     `xml:"xmlns:dc,attr"`
	WPNS      string     `xml:"xmlns:wp,attr"`
	Channel   wxrChannel `xml:"channel"`
}

type wxrChannel struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	BaseSiteURL string    `xml:"wp:base_site_url"`
	BaseBlogURL string    `xml:"wp:base_blog_url"`
	WXRVersion  string    `xml:"wp:wxr_version"`
	Items       []wxrItem `xml:"item"`
}

type wxrItem struct {
	Title      string       `xml:"title"`
	Creator    string       `xml:"dc:creator"`
	Content    string       `xml:"content:encoded"`
	Excerpt    string       `xml:"excerpt:encoded"`
	PostID     string       `xml:"wp:post_id"`
	PostDate   string       `xml:"wp:post_date"`
	PostParent string       `xml:"wp:post_parent"`
	MenuOrder  string       `xml:"wp:menu_order"`
	Status     string       `xml:"wp:status"`
	PostType   string       `xml:"wp:post_type"`
	Comments   []wxrComment `xml:"wp:comment"`
}

type wxrComment struct {
	Type        string `xml:"type,attr"`
	Approved    string `xml:"wp:comment_approved"`
	Parent      string `xml:"wp:comment_parent"`
	ID          string `xml:"wp:comment_id"`
	PostID      string `xml:"wp:comment_post_id"`
	Author      string `xml:"wp:comment_author"`
	AuthorEmail string `xml:"wp:comment_author_email"`
	AuthorURL   string `xml:"wp:comment_author_url"`
	Date        string `xml:"wp:comment_date"`
	Content     string `xml:"wp:comment_content"`
}

func newWXRDocument(baseURL string) *wxrDocument {
	return &wxrDocument{
		Version:   "2.0",
		ContentNS: contentNS,
		DCNS:      dcNS,
		WPNS:      wpNS,
		Channel: wxrChannel{
			Title:       channelTitle,
			Description: channelDescription,
			BaseSiteURL: baseURL,
			BaseBlogURL: baseURL,
			WXRVersion:  wxrVersion,
		},
	}
}
