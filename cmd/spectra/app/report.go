package app

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/spectra/internal/gauss"
	"github.com/roman-kulish/spectra/internal/spectrum"
)

// formatPosition formats a position with its unit. Frequencies get SI
// prefixes, wavelengths and wavenumbers are printed as they are.
func formatPosition(v float64, unit spectrum.Unit) string {
	switch unit {
	case spectrum.UnitHertz, spectrum.UnitRadPerSecond:
		fract, prefix := humanize.ComputeSI(v)
		return fmt.Sprintf("%0.2f %s%s", fract, prefix, unit)

	case spectrum.UnitNanometer, spectrum.UnitWavenumber:
		return fmt.Sprintf("%0.2f %s", v, unit)

	default:
		return humanize.FormatFloat("#,###.##", v)
	}
}

func formatIntensity(v float64) string {
	if v == 0 {
		return "0"
	}
	fract, prefix := humanize.ComputeSI(v)
	return fmt.Sprintf("%0.2f%s", fract, prefix)
}

func formatError(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'g', 3, 64)
}

// WriteReport writes a plain text summary of the analysis: the spectrum, its
// peaks, every fit with per-component line parameters and the response.
func WriteReport(w io.Writer, a *Analysis) error {
	snap := a.Final()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Job:\t%s\n", a.Job.Name)
	fmt.Fprintf(tw, "File:\t%s\n", a.Job.File)
	fmt.Fprintf(tw, "Unit:\t%s\n", snap.Unit)
	if a.Converted != nil {
		fmt.Fprintf(tw, "Converted from:\t%s\n", a.Source.Unit)
	}
	fmt.Fprintf(tw, "Samples:\t%s\n", humanize.Comma(int64(snap.Spectrum.Len())))
	fmt.Fprintf(tw, "Noise floor:\t%s\n", formatIntensity(a.NoiseFloor))

	fmt.Fprintf(tw, "\nPeaks: %d\n", len(snap.Peaks))
	if len(snap.Peaks) > 0 {
		fmt.Fprintln(tw, "#\tIndex\tPosition\tIntensity")
		for i, p := range snap.Peaks {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", i, p.Index, formatPosition(p.Position, snap.Unit), formatIntensity(p.Intensity))
		}
	}

	for _, f := range a.Fits {
		fmt.Fprintf(tw, "\nFit %s over [%d, %d): cost %s, %d iterations\n",
			f.Kind, f.Begin, f.End, strconv.FormatFloat(f.Cost, 'g', 4, 64), f.Iterations)
		fmt.Fprintln(tw, "Component\tArea\tCentre\tSigma\tFWHM\tHeight")

		for c := 0; c < f.Kind.Components(); c++ {
			p, e := f.Params[3*c:3*c+3], f.StdErrors[3*c:3*c+3]
			fmt.Fprintf(tw, "%d\t%s ± %s\t%s ± %s\t%s ± %s\t%s\t%s\n", c+1,
				formatIntensity(p[0]), formatError(e[0]),
				formatPosition(p[1], f.Unit), formatError(e[1]),
				strconv.FormatFloat(p[2], 'g', 4, 64), formatError(e[2]),
				strconv.FormatFloat(gauss.FWHM(p[2]), 'g', 4, 64),
				formatIntensity(gauss.Height(p[0], p[2])),
			)
		}
		if f.Kind == gauss.Gaussian {
			fmt.Fprintf(tw, "Offset\t%s ± %s\n", formatIntensity(f.Params[3]), formatError(f.StdErrors[3]))
		}
	}

	if r := a.Response; r != nil {
		peak := 0
		for i, v := range r.Values {
			if v > r.Values[peak] {
				peak = i
			}
		}
		fmt.Fprintf(tw, "\nResponse (%s) from %s fit over [%d, %d): %d values, maximum %s at %d\n",
			r.Method, r.Fit.Kind, r.Fit.Begin, r.Fit.End, len(r.Values), formatIntensity(r.Values[peak]), peak)
	}

	return tw.Flush()
}
