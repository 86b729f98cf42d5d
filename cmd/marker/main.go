// marker writes the base-station ArUco marker as a PNG to show on a phone
// screen or print.
package main

import (
	"flag"
	"os"

	"github.com/teslashibe/signal-splat/internal/log"
	"github.com/teslashibe/signal-splat/pkg/vision"
)

func main() {
	id := flag.Int("id", vision.BaseStationID, "marker id in the 6x6_250 dictionary")
	side := flag.Int("size", 400, "marker edge in pixels")
	margin := flag.Int("margin", 40, "white border in pixels")
	out := flag.String("out", "marker.png", "output file")
	flag.Parse()

	logger := log.With("cmd", "marker")
	if err := vision.GenerateMarker(*id, *side, *margin, *out); err != nil {
		logger.Error("generate marker", "error", err)
		os.Exit(1)
	}
	logger.Info("marker written", "id", *id, "path", *out)
}
