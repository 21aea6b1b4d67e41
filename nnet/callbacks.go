package nnet

import (
	"log/slog"
	"math"
)

// Callback is run by the tester at the end of each epoch after the validation stats are calculated.
type Callback interface {
	// EpochEnd returns true if training should stop
	EpochEnd(net *Network, s *Stats) bool
	// TrainEnd is called after the last epoch
	TrainEnd(net *Network)
}

// EarlyStopping stops training once the validation loss has not improved by more than MinDelta
// for Patience epochs. If RestoreBest is set the weights from the best epoch are restored at the end.
type EarlyStopping struct {
	Patience    int
	MinDelta    float64
	RestoreBest bool
	best        float64
	bestEpoch   int
	wait        int
	weights     []LayerData
}

func NewEarlyStopping(patience int, minDelta float64, restoreBest bool) *EarlyStopping {
	return &EarlyStopping{Patience: patience, MinDelta: minDelta, RestoreBest: restoreBest, best: math.Inf(1)}
}

// BestEpoch returns the epoch with the lowest validation loss
func (c *EarlyStopping) BestEpoch() int { return c.bestEpoch }

func (c *EarlyStopping) EpochEnd(net *Network, s *Stats) bool {
	if s.ValidLoss < c.best-c.MinDelta {
		c.best, c.bestEpoch, c.wait = s.ValidLoss, s.Epoch, 0
		if c.RestoreBest {
			c.weights = net.Export()
		}
	} else {
		c.wait++
	}
	s.BestSince = c.wait
	if c.Patience > 0 && c.wait >= c.Patience {
		slog.Info("early stopping", "epoch", s.Epoch, "best_epoch", c.bestEpoch, "val_loss", c.best)
		return true
	}
	return false
}

func (c *EarlyStopping) TrainEnd(net *Network) {
	if !c.RestoreBest || c.weights == nil || c.wait == 0 {
		return
	}
	slog.Info("restoring best weights", "epoch", c.bestEpoch)
	if err := net.Import(c.weights); err != nil {
		panic(err)
	}
}

// ReduceLROnPlateau multiplies the learning rate by Factor once the validation loss has not improved
// for Patience epochs, subject to a floor of MinEta, then waits Cooldown epochs before counting again.
type ReduceLROnPlateau struct {
	Factor   float64
	Patience int
	Cooldown int
	MinEta   float64
	MinDelta float64
	best     float64
	wait     int
	cooldown int
}

func NewReduceLROnPlateau(factor float64, patience, cooldown int, minEta float64) *ReduceLROnPlateau {
	return &ReduceLROnPlateau{Factor: factor, Patience: patience, Cooldown: cooldown, MinEta: minEta, best: math.Inf(1)}
}

func (c *ReduceLROnPlateau) EpochEnd(net *Network, s *Stats) bool {
	if c.cooldown > 0 {
		c.cooldown--
		c.wait = 0
	}
	if s.ValidLoss < c.best-c.MinDelta {
		c.best = s.ValidLoss
		c.wait = 0
		return false
	}
	if c.cooldown > 0 {
		return false
	}
	c.wait++
	if c.wait >= c.Patience {
		opt := net.Optimiser()
		if eta := opt.Eta(); eta > c.MinEta {
			newEta := math.Max(eta*c.Factor, c.MinEta)
			opt.SetEta(newEta)
			slog.Info("reducing learning rate", "epoch", s.Epoch, "eta", newEta)
			c.cooldown = c.Cooldown
			c.wait = 0
		}
	}
	return false
}

func (c *ReduceLROnPlateau) TrainEnd(net *Network) {}

// Callbacks returns the early stopping and learning rate decay callbacks enabled in the config.
func (c Config) Callbacks() []Callback {
	var cb []Callback
	if c.StopAfter > 0 || c.RestoreBest {
		cb = append(cb, NewEarlyStopping(c.StopAfter, c.MinDelta, c.RestoreBest))
	}
	if c.DecayFactor > 0 && c.DecayPatience > 0 {
		reduce := NewReduceLROnPlateau(c.DecayFactor, c.DecayPatience, c.Cooldown, c.MinEta)
		reduce.MinDelta = c.MinDelta
		cb = append(cb, reduce)
	}
	return cb
}
