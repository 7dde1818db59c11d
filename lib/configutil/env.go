package configutil

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ReadEnv loads the given dotenv files (missing ones are skipped) and then
// overrides the fields of out from environment variables named
// <prefix>_<FIELD>.
func ReadEnv(prefix string, out any, dotenvFiles ...string) error {
	for _, f := range dotenvFiles {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return envconfig.Process(prefix, out)
}
