package model

// Citation describes one rendered page for reference managers.
type Citation struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Accessed  string `json:"accessed"`
	LocalPath string `json:"local_path,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	Author    string `json:"author,omitempty"`
}
