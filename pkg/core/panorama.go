// pkg/core/panorama.go
package core

// GeoLocation is the WGS84 capture point of a panorama.
type GeoLocation struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// PanoramaResource identifies the 360° image being viewed. It is owned by the
// caller; the positioner only reacts to changes of ID.
type PanoramaResource struct {
	ID       string       `json:"id"`
	ImageURL string       `json:"imageUrl"`
	Caption  string       `json:"caption"`
	Location *GeoLocation `json:"location,omitempty"`
}

// Empty reports whether no panorama has been selected.
func (r PanoramaResource) Empty() bool {
	return r.ID == "" && r.ImageURL == ""
}
