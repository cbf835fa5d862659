package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

var conf *Conf

type SourceConf struct {
	Name   string `mapstructure:"name"`
	URL    string `mapstructure:"url"`
	Format string `mapstructure:"format"`
	Scheme string `mapstructure:"scheme"`
	// Rate is the request rate limit per second, zero for none.
	Rate    float64 `mapstructure:"rate"`
	Burst   int     `mapstructure:"burst"`
	Retries int     `mapstructure:"retries"`
}

// TaskConf holds the load budgets and the scheduler tuning.
type TaskConf struct {
	StaticTotal        int  `mapstructure:"staticTotal"`
	StaticNew          int  `mapstructure:"staticNew"`
	BusyTotal          int  `mapstructure:"busyTotal"`
	BusyNew            int  `mapstructure:"busyNew"`
	AlwaysReprioritize bool `mapstructure:"alwaysReprioritize"`
	BufSize            int  `mapstructure:"bufSize"`
	MaxCached          int  `mapstructure:"maxCached"`
	Timeout            int  `mapstructure:"timeout"` // seconds per request
}

type Conf struct {
	App struct {
		Version string `mapstructure:"version"`
		Title   string `mapstructure:"title"`
	} `mapstructure:"app"`
	Output struct {
		LogDir         string `mapstructure:"logDir"`
		OutputTerminal bool   `mapstructure:"outputTerminal"`
	} `mapstructure:"output"`
	View struct {
		Width    int     `mapstructure:"width"`
		Height   int     `mapstructure:"height"`
		Zoom     int     `mapstructure:"zoom"`
		MaxZoom  int     `mapstructure:"maxZoom"`
		Rotation float64 `mapstructure:"rotation"`
		FPS      int     `mapstructure:"fps"`
		// Speed in pixels per second.
		Speed float64 `mapstructure:"speed"`
	} `mapstructure:"view"`
	Path struct {
		Geojson string `mapstructure:"geojson"`
	} `mapstructure:"path"`
	Task  TaskConf `mapstructure:"task"`
	Store struct {
		// Format is mbtiles, dir or none.
		Format    string `mapstructure:"format"`
		Directory string `mapstructure:"directory"`
		Journal   bool   `mapstructure:"journal"`
	} `mapstructure:"store"`
	Sources []SourceConf `mapstructure:"sources"`
}

// InitConf reads the TOML config file into conf.
func InitConf(cfgFile string) error {
	if cfgFile == "" {
		cfgFile = "conf.toml"
	}
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		return fmt.Errorf("config file(%s) not exist", cfgFile)
	}
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(cfgFile)
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file(%s) error, details: %w", v.ConfigFileUsed(), err)
	}
	setDefaults(v)

	c := new(Conf)
	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("parse config file(%s): %w", cfgFile, err)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("config file(%s) has no [[sources]]", cfgFile)
	}
	conf = c
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.version", version)
	v.SetDefault("app.title", "MapCloud Tiler")
	v.SetDefault("output.outputTerminal", true)
	v.SetDefault("view.width", 1024)
	v.SetDefault("view.height", 768)
	v.SetDefault("view.zoom", 12)
	v.SetDefault("view.maxZoom", 20)
	v.SetDefault("view.fps", 30)
	v.SetDefault("view.speed", 256)
	v.SetDefault("task.staticTotal", 16)
	v.SetDefault("task.staticNew", 16)
	v.SetDefault("task.busyTotal", 8)
	v.SetDefault("task.busyNew", 2)
	v.SetDefault("task.bufSize", 64)
	v.SetDefault("task.maxCached", 512)
	v.SetDefault("task.timeout", 30)
	v.SetDefault("store.format", "mbtiles")
	v.SetDefault("store.directory", "output")
	v.SetDefault("store.journal", true)
}
