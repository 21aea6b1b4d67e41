package nnet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
)

// Weight initialisation scheme
type InitType int

const (
	GlorotUniform InitType = iota
	HeNormal
)

func (t InitType) String() string {
	switch t {
	case GlorotUniform:
		return "GlorotUniform"
	case HeNormal:
		return "HeNormal"
	default:
		return "InitType(" + strconv.Itoa(int(t)) + ")"
	}
}

// Training configuration settings
type Config struct {
	Optimiser     string
	Eta           float64
	Momentum      float64
	Nesterov      bool
	TrainBatch    int
	MaxEpoch      int
	MaxSamples    int
	Shuffle       bool
	StopAfter     int
	MinDelta      float64
	RestoreBest   bool
	DecayFactor   float64
	DecayPatience int
	Cooldown      int
	MinEta        float64
	WeightInit    InitType
	RandSeed      int64
	Threads       int
	LogEvery      int
	DebugLevel    int
	Profile       bool
	Layers        []LayerConfig
}

// Default settings: Adam optimiser with batch size 64 and early stopping on the validation loss.
func DefaultConfig() Config {
	return Config{
		Optimiser:   "adam",
		Eta:         0.001,
		Momentum:    0.9,
		TrainBatch:  64,
		MaxEpoch:    50,
		Shuffle:     true,
		StopAfter:   10,
		RestoreBest: true,
		MinEta:      1e-6,
		WeightInit:  GlorotUniform,
	}
}

// Load network from json file under DataDir
func LoadConfig(name string) (c Config, err error) {
	filePath := filepath.Join(DataDir, name)
	var f *os.File
	if f, err = os.Open(filePath); err != nil {
		return
	}
	defer f.Close()
	if err = json.NewDecoder(f).Decode(&c); err != nil {
		return c, fmt.Errorf("error decoding %s: %w", name, err)
	}
	return c, nil
}

// Append layers to the config struct
func (c Config) AddLayers(layers ...ConfigLayer) Config {
	c.Layers = append(append([]LayerConfig{}, c.Layers...), marshalLayers(layers)...)
	return c
}

// Save config to JSON file under DataDir, the file is written to a temporary name and then renamed.
func (c Config) Save(name string) error {
	if err := os.MkdirAll(DataDir, 0755); err != nil {
		return err
	}
	filePath := filepath.Join(DataDir, "."+name)
	f, err := os.Create(filePath)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("error encoding %s: %w", name, err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(filePath, filepath.Join(DataDir, name))
}

// Copy returns a copy of the config with a separate layer list
func (c Config) Copy() Config {
	c.Layers = append([]LayerConfig{}, c.Layers...)
	return c
}

// Fields returns the names of the scalar settings
func (c Config) Fields() []string {
	st := reflect.TypeOf(c)
	fld := make([]string, st.NumField()-1)
	for i := range fld {
		fld[i] = st.Field(i).Name
	}
	return fld
}

func (c Config) Get(key string) interface{} {
	s := reflect.ValueOf(c)
	return s.FieldByName(key).Interface()
}

func (c Config) configString() string {
	fields := c.Fields()
	str := []string{"== Config =="}
	for _, key := range fields {
		str = append(str, fmt.Sprintf("%-14s: %v", key, c.Get(key)))
	}
	return strings.Join(str, "\n")
}

func (c Config) String() string {
	s := c.configString()
	if c.Layers != nil {
		str := []string{"\n== Network =="}
		for i, layer := range c.Layers {
			str = append(str, fmt.Sprintf("%2d: %s", i, layer))
		}
		s += strings.Join(str, "\n")
	}
	return s
}

func (c Config) SetString(key, val string) (Config, error) {
	s := reflect.ValueOf(&c).Elem()
	f := s.FieldByName(key)
	if !f.IsValid() {
		return c, fmt.Errorf("unknown config field %q", key)
	}
	var err error
	switch f.Type().Kind() {
	case reflect.Int, reflect.Int64:
		var x int64
		if x, err = strconv.ParseInt(val, 10, 64); err == nil {
			f.SetInt(x)
		}
	case reflect.Float64:
		var x float64
		if x, err = strconv.ParseFloat(val, 64); err == nil {
			f.SetFloat(x)
		}
	case reflect.String:
		f.SetString(val)
	case reflect.Bool:
		var x bool
		if x, err = strconv.ParseBool(val); err == nil {
			f.SetBool(x)
		}
	default:
		return c, fmt.Errorf("invalid type for SetString: %v", f.Type().Kind())
	}
	return c, err
}

func (c Config) SetBool(key string, val bool) (Config, error) {
	s := reflect.ValueOf(&c).Elem()
	f := s.FieldByName(key)
	if f.IsValid() && f.Type().Kind() == reflect.Bool {
		f.SetBool(val)
		return c, nil
	}
	return c, fmt.Errorf("invalid type for SetBool: %s", key)
}
