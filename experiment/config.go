// Package experiment runs the training and evaluation pipeline for each configured model.
package experiment

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/cifar"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/zoo"
)

var ErrInvalidConfig = errors.New("invalid experiment config")

// Model has the training settings for one network. Zero values keep the default from the model zoo.
type Model struct {
	Name          string  `yaml:"name"`
	Epochs        int     `yaml:"epochs,omitempty"`
	Batch         int     `yaml:"batch,omitempty"`
	Optimiser     string  `yaml:"optimiser,omitempty"`
	Eta           float64 `yaml:"eta,omitempty"`
	Patience      int     `yaml:"patience,omitempty"`
	DecayFactor   float64 `yaml:"decay_factor,omitempty"`
	DecayPatience int     `yaml:"decay_patience,omitempty"`
	MaxSamples    int     `yaml:"max_samples,omitempty"`
}

// Config is the experiment definition, normally read from a YAML file.
type Config struct {
	DataDir     string  `yaml:"data_dir"`
	OutDir      string  `yaml:"out_dir"`
	Download    bool    `yaml:"download"`
	URL         string  `yaml:"url,omitempty"`
	ValidFrac   float64 `yaml:"valid_frac"`
	Seed        int64   `yaml:"seed"`
	Threads     int     `yaml:"threads"`
	Samples     int     `yaml:"samples"`
	SaveWeights bool    `yaml:"save_weights"`
	Models      []Model `yaml:"models"`

	// console output, os.Stdout if nil
	Out io.Writer `yaml:"-"`

	build func(name string) (nnet.Config, error)
}

func (c Config) builder() func(string) (nnet.Config, error) {
	if c.build != nil {
		return c.build
	}
	return zoo.Build
}

// Default settings: each model is trained with Adam for up to 50 epochs with batch size 64, stopping
// after 10 epochs without improvement. ResNet-18 and MobileNet halve the learning rate after 5.
func Default() Config {
	c := Config{
		DataDir:   nnet.DataDir,
		OutDir:    "output",
		Download:  true,
		URL:       cifar.DefaultURL,
		ValidFrac: 0.1,
		Seed:      42,
		Samples:   32,
	}
	for _, name := range zoo.Names() {
		m := Model{Name: name, Epochs: 50, Batch: 64, Optimiser: "adam", Eta: 0.001, Patience: 10}
		if name == "resnet18" || name == "mobilenet" {
			m.DecayFactor, m.DecayPatience = 0.5, 5
		}
		c.Models = append(c.Models, m)
	}
	return c
}

// Load reads the YAML file and applies it on top of the defaults. A models list in the file replaces
// the default one.
func Load(pathName string) (Config, error) {
	c := Default()
	content, err := os.ReadFile(pathName)
	if err != nil {
		return c, err
	}
	if err = yaml.Unmarshal(content, &c); err != nil {
		return c, fmt.Errorf("error parsing %s: %w", pathName, err)
	}
	return c, c.Validate()
}

// Save writes the config in YAML format.
func (c Config) Save(pathName string) error {
	content, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(pathName, content, 0644)
}

// Validate checks the settings and the model names.
func (c Config) Validate() error {
	if c.ValidFrac <= 0 || c.ValidFrac >= 1 {
		return fmt.Errorf("%w: valid_frac must be between 0 and 1, got %g", ErrInvalidConfig, c.ValidFrac)
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("%w: no models", ErrInvalidConfig)
	}
	for _, m := range c.Models {
		if _, err := c.builder()(m.Name); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if m.Epochs < 0 || m.Batch < 0 || m.Eta < 0 || m.MaxSamples < 0 {
			return fmt.Errorf("%w: negative setting for model %s", ErrInvalidConfig, m.Name)
		}
		if m.Optimiser != "" && m.Optimiser != "adam" && m.Optimiser != "sgd" {
			return fmt.Errorf("%w: unknown optimiser %q for model %s", ErrInvalidConfig, m.Optimiser, m.Name)
		}
	}
	return nil
}

// Select keeps only the named models, in the given order.
func (c Config) Select(names ...string) (Config, error) {
	if len(names) == 0 {
		return c, nil
	}
	var models []Model
	for _, name := range names {
		m, ok := c.Model(name)
		if !ok {
			if _, err := c.builder()(name); err != nil {
				return c, err
			}
			m = Model{Name: name}
		}
		models = append(models, m)
	}
	c.Models = models
	return c, nil
}

// Model returns the settings for the named model.
func (c Config) Model(name string) (Model, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

// Network returns the network definition from the model zoo with the training settings applied.
func (c Config) Network(m Model) (nnet.Config, error) {
	conf, err := c.builder()(m.Name)
	if err != nil {
		return conf, err
	}
	if m.Epochs > 0 {
		conf.MaxEpoch = m.Epochs
	}
	if m.Batch > 0 {
		conf.TrainBatch = m.Batch
	}
	if m.Optimiser != "" {
		conf.Optimiser = m.Optimiser
	}
	if m.Eta > 0 {
		conf.Eta = m.Eta
	}
	if m.Patience > 0 {
		conf.StopAfter = m.Patience
	}
	if m.DecayFactor > 0 {
		conf.DecayFactor = m.DecayFactor
	}
	if m.DecayPatience > 0 {
		conf.DecayPatience = m.DecayPatience
	}
	conf.MaxSamples = m.MaxSamples
	conf.RandSeed = c.Seed
	conf.Threads = c.Threads
	return conf, nil
}

// FromNetwork returns the model settings which reproduce the training settings in the network config.
func FromNetwork(name string, conf nnet.Config) Model {
	return Model{
		Name:          name,
		Epochs:        conf.MaxEpoch,
		Batch:         conf.TrainBatch,
		Optimiser:     conf.Optimiser,
		Eta:           conf.Eta,
		Patience:      conf.StopAfter,
		DecayFactor:   conf.DecayFactor,
		DecayPatience: conf.DecayPatience,
		MaxSamples:    conf.MaxSamples,
	}
}

// SetModel replaces the settings for the model with the same name.
func (c *Config) SetModel(m Model) bool {
	for i := range c.Models {
		if c.Models[i].Name == m.Name {
			c.Models[i] = m
			return true
		}
	}
	return false
}
