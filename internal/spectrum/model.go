package spectrum

// Spectrum is an ordered sequence of samples. Index i of both slices is the
// i-th acquired sample; positions are kept in acquisition order and never
// sorted.
type Spectrum struct {
	Positions   []float64 `json:"positions"`   // Wavelength, frequency or wavenumber of each sample
	Intensities []float64 `json:"intensities"` // Measured intensity of each sample
}

// Len returns the number of samples.
func (s Spectrum) Len() int {
	return len(s.Positions)
}

// Clone returns a deep copy of s.
func (s Spectrum) Clone() Spectrum {
	return Spectrum{
		Positions:   append([]float64(nil), s.Positions...),
		Intensities: append([]float64(nil), s.Intensities...),
	}
}

// Peak references a local intensity maximum of a spectrum. Position and
// Intensity are copies of the sample at Index and are refreshed by the owning
// Store whenever the position axis changes.
type Peak struct {
	Index     int     `json:"index"`     // Sample index of the maximum
	Position  float64 `json:"position"`  // Position of the sample in the current units
	Intensity float64 `json:"intensity"` // Intensity of the sample
}
