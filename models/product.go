package models

// Product is a single listing extracted from a page.
type Product struct {
	// Name is the trimmed display name. It is the deduplication key.
	Name string

	// Price is free-form text as shown on the page, possibly empty.
	Price string

	// ImageURL is the image locator as found in the markup (absolute or
	// relative), possibly empty.
	ImageURL string
}

// ExportSummary reports what a run wrote to disk.
type ExportSummary struct {
	// Products is the number of data rows written to the CSV file.
	Products int

	// ImagesSaved counts images normalized and written successfully.
	ImagesSaved int

	// ImagesFailed counts rows whose image could not be fetched, decoded or
	// written. Their image_filename does not resolve to a file.
	ImagesFailed int

	// ImagesSkipped counts rows without an image locator.
	ImagesSkipped int

	CSVPath   string
	ImagesDir string
}
