package cmd

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
)

var heightCmd = &cobra.Command{
	Use:   "height <lat> <lon>",
	Short: "Query the terrain height at a point",
	Long: `Look up the height above mean sea level at a point from the loaded
elevation cells and directories. With --geoid-offset the height above the
ellipsoid is reported as well.

Cells are loaded from ~/.vmap/elevation, the install directory, the
ELEVATION_PATH directories, --elevation-state and --elevation-path.`,
	Args: cobra.ExactArgs(2),
	Run:  runHeight,
}

func init() {
	rootCmd.AddCommand(heightCmd)
	addElevationFlags(heightCmd)
}

func runHeight(cmd *cobra.Command, args []string) {
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil || lat < -90 || lat > 90 {
		exitWithError("invalid latitude", fmt.Errorf("%q", args[0]))
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil || lon < -180 || lon > 180 {
		exitWithError("invalid longitude", fmt.Errorf("%q", args[1]))
	}

	m, err := newElevationManager()
	if err != nil {
		exitWithError("failed to set up elevation", err)
	}
	defer m.CloseAllCells()

	pt := orb.Point{lon, lat}
	out := cmd.OutOrStdout()

	msl, ok := m.HeightAboveMSL(pt)
	if !ok {
		fmt.Fprintf(out, "No elevation data at %.6f, %.6f\n", lat, lon)
		return
	}
	fmt.Fprintf(out, "Height above MSL: %.2f m\n", msl)
	if hae, ok := m.HeightAboveEllipsoid(pt); ok {
		fmt.Fprintf(out, "Height above ellipsoid: %.2f m\n", hae)
	}
	if file, ok := m.CellFilenameForPoint(pt); ok {
		fmt.Fprintf(out, "Cell: %s\n", file)
	}
	if spacing, ok := m.MeanSpacingMeters(); ok {
		fmt.Fprintf(out, "Mean post spacing: %.1f m\n", spacing)
	}
	if ce90, ok := m.AccuracyCE90(pt); ok && ce90 > 0 {
		fmt.Fprintf(out, "Horizontal accuracy (CE90): %.1f m\n", ce90)
	}
	if le90, ok := m.AccuracyLE90(pt); ok && le90 > 0 {
		fmt.Fprintf(out, "Vertical accuracy (LE90): %.1f m\n", le90)
	}
}
