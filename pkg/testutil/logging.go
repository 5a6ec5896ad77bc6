package testutil

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logs are discarded unless tests run with -v.
func init() {
	logrus.SetLevel(logrus.TraceLevel)

	for _, arg := range os.Args {
		if arg == "-test.v=true" || arg == "-test.v" {
			return
		}
	}
	logrus.StandardLogger().SetOutput(io.Discard)
}
