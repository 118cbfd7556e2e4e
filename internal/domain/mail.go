package domain

type HarmonizationDoneMailData struct {
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	Score    int    `json:"score"`
	Rendered string `json:"rendered"`
}

type HarmonizationFailedMailData struct {
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	ErrorMessage string `json:"errorMessage"`
}
