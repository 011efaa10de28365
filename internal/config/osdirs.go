package config

import "os"

func osUserConfigDir() (string, error) {
	return os.UserConfigDir()
}
