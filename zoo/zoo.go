// Package zoo defines the network architectures compared on CIFAR-10.
package zoo

import (
	"fmt"
	"sort"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"
)

// number of output classes
const Classes = 10

// Builder returns the network configuration including the model specific training settings
type Builder func() nnet.Config

var builders = map[string]Builder{
	"cnn":       CustomCNN,
	"resnet18":  ResNet18,
	"alexnet":   AlexNet,
	"mobilenet": func() nnet.Config { return MobileNet(1) },
}

// Names lists the available models in the order they are compared
func Names() []string {
	return []string{"cnn", "resnet18", "alexnet", "mobilenet"}
}

// Build returns the configuration for the named model
func Build(name string) (nnet.Config, error) {
	b, ok := builders[name]
	if !ok {
		names := make([]string, 0, len(builders))
		for key := range builders {
			names = append(names, key)
		}
		sort.Strings(names)
		return nnet.Config{}, fmt.Errorf("unknown model %q: valid models are %v", name, names)
	}
	return b(), nil
}

func convBN(nfeat, size, stride int, activ string) []nnet.ConfigLayer {
	return []nnet.ConfigLayer{
		nnet.Conv{Nfeats: nfeat, Size: size, Stride: stride, Pad: true, NoBias: true},
		nnet.BatchNorm{},
		nnet.Activation{Atype: activ},
	}
}

func classifier(layers ...nnet.ConfigLayer) []nnet.ConfigLayer {
	return append(layers,
		nnet.Linear{Nout: Classes},
		nnet.Activation{Atype: "softmax"},
	)
}

// CustomCNN is a VGG style network with three stages of paired 3x3 convolutions.
//
//	[32,32,3] => [16,16,32] => [8,8,64] => [4,4,128] => 256 => 10
func CustomCNN() nnet.Config {
	c := nnet.DefaultConfig()
	for _, nfeat := range []int{32, 64, 128} {
		c = c.AddLayers(convBN(nfeat, 3, 1, "relu")...)
		c = c.AddLayers(convBN(nfeat, 3, 1, "relu")...)
		c = c.AddLayers(nnet.Pool{Size: 2}, nnet.Dropout{Ratio: 0.25})
	}
	return c.AddLayers(classifier(
		nnet.Flatten{},
		nnet.Linear{Nout: 256},
		nnet.BatchNorm{},
		nnet.Activation{Atype: "relu"},
		nnet.Dropout{Ratio: 0.5},
	)...)
}

// AlexNet adapted to 32x32 inputs with batch normalisation after the first two convolutions.
//
//	[32,32,3] => [16,16,96] => [8,8,256] => [4,4,256] => 4096 => 4096 => 10
func AlexNet() nnet.Config {
	c := nnet.DefaultConfig()
	c = c.AddLayers(convBN(96, 3, 1, "relu")...)
	c = c.AddLayers(nnet.Pool{Size: 2})
	c = c.AddLayers(convBN(256, 5, 1, "relu")...)
	c = c.AddLayers(nnet.Pool{Size: 2})
	for _, nfeat := range []int{384, 384, 256} {
		c = c.AddLayers(
			nnet.Conv{Nfeats: nfeat, Size: 3, Pad: true},
			nnet.Activation{Atype: "relu"},
		)
	}
	return c.AddLayers(classifier(
		nnet.Pool{Size: 2},
		nnet.Flatten{},
		nnet.Linear{Nout: 4096},
		nnet.Activation{Atype: "relu"},
		nnet.Dropout{Ratio: 0.5},
		nnet.Linear{Nout: 4096},
		nnet.Activation{Atype: "relu"},
		nnet.Dropout{Ratio: 0.5},
	)...)
}
