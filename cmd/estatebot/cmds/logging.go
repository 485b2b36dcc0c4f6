package cmds

import (
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// quietLogger drops log output that would draw over a full-screen UI, unless
// --log-file already sends it elsewhere.
func quietLogger() {
	if viper.GetString("log-file") == "" {
		log.Logger = log.Output(io.Discard)
	}
}
