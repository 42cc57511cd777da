package entity

// Area is a staging area under the data directory.
type Area string

const (
	// AreaAgreed holds images whose prediction the user confirmed.
	AreaAgreed Area = "correct"
	// AreaCorrections holds images with a user-corrected label.
	AreaCorrections Area = "corrections"
	// AreaManual is the manual-labeling queue. It never has labels.
	AreaManual Area = "manual_labeling"
)

// HasLabels reports whether the area keeps a labels/ folder.
func (a Area) HasLabels() bool {
	return a != AreaManual
}

// ArtifactNames is the picture/label file name pair for one upload. Both
// names share the same unique stem; Label ends in ".txt".
type ArtifactNames struct {
	Picture string
	Label   string
}
