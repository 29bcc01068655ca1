package configuration

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads KEY=VALUE files that exist. Variables already set in the environment win.
func LoadEnvFiles(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}
