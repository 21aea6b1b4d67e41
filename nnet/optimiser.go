package nnet

import (
	"fmt"
	"strings"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/num"
)

// Optimiser updates the weights given the gradients from the last batch.
type Optimiser interface {
	// Eta returns the current learning rate
	Eta() float64
	SetEta(eta float64)
	// Next is called once per batch before the parameter updates
	Next()
	// StateSize is the number of state arrays needed per parameter array
	StateSize() int
	Update(w, dw num.Array, state []num.Array) num.Function
}

// NewOptimiser returns the optimiser named in the config: adam (default) or sgd.
func NewOptimiser(conf Config) (Optimiser, error) {
	switch strings.ToLower(conf.Optimiser) {
	case "", "adam":
		return NewAdam(conf.Eta), nil
	case "sgd":
		return &SGD{eta: conf.Eta, Momentum: conf.Momentum, Nesterov: conf.Nesterov}, nil
	default:
		return nil, fmt.Errorf("invalid optimiser %q", conf.Optimiser)
	}
}

// Adam optimiser, see https://arxiv.org/abs/1412.6980
type Adam struct {
	Beta1   float64
	Beta2   float64
	Epsilon float64
	eta     float64
	step    int
}

func NewAdam(eta float64) *Adam {
	return &Adam{eta: eta, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-7}
}

func (o *Adam) Eta() float64 { return o.eta }

func (o *Adam) SetEta(eta float64) { o.eta = eta }

func (o *Adam) Next() { o.step++ }

func (o *Adam) StateSize() int { return 2 }

func (o *Adam) Update(w, dw num.Array, state []num.Array) num.Function {
	return num.AdamUpdate(float32(o.eta), float32(o.Beta1), float32(o.Beta2), float32(o.Epsilon), max(o.step, 1),
		w, dw, state[0], state[1])
}

// Stochastic gradient descent with momentum
type SGD struct {
	Momentum float64
	Nesterov bool
	eta      float64
}

func (o *SGD) Eta() float64 { return o.eta }

func (o *SGD) SetEta(eta float64) { o.eta = eta }

func (o *SGD) Next() {}

func (o *SGD) StateSize() int { return 1 }

func (o *SGD) Update(w, dw num.Array, state []num.Array) num.Function {
	return num.MomentumUpdate(float32(o.eta), float32(o.Momentum), o.Nesterov, w, dw, state[0])
}
