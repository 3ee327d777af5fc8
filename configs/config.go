package configs

import (
	"github.com/spf13/viper"
)

// Root holds the settings of a reduction run. Command line flags override them.
type Root struct {
	MaxRounds int
	Strong    bool

	OutputDir string
	DB        string
	TraceFile string

	Workers int
}

func ReadConfig(path string) (Root, error) {
	v := viper.New()
	v.SetDefault("Workers", 1)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Root{}, err
	}
	var c Root
	err := v.Unmarshal(&c)
	return c, err
}
