package zoo

import "github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"

// Residual network: see https://arxiv.org/abs/1512.03385

func block(nfeat, stride int) []nnet.ConfigLayer {
	return []nnet.ConfigLayer{
		nnet.Conv{Nfeats: nfeat, Size: 3, Stride: stride, Pad: true, NoBias: true},
		nnet.BatchNorm{},
		nnet.Activation{Atype: "relu"},
		nnet.Conv{Nfeats: nfeat, Size: 3, Pad: true, NoBias: true},
		nnet.BatchNorm{},
	}
}

// ResBlock is a basic residual block with nin input and nout output channels. The shortcut is the
// identity if stride is 1 and nin equals nout, else it is projected with a strided 1x1 convolution
// and batch normalisation so the shapes match at the add.
func ResBlock(nin, nout, stride int) []nnet.ConfigLayer {
	var project []nnet.ConfigLayer
	if stride != 1 || nin != nout {
		project = []nnet.ConfigLayer{
			nnet.Conv{Nfeats: nout, Size: 1, Stride: stride, Pad: true, NoBias: true},
			nnet.BatchNorm{},
		}
	}
	return []nnet.ConfigLayer{
		nnet.AddLayer(block(nout, stride), project),
		nnet.Activation{Atype: "relu"},
	}
}

// ResNet18 has a 3x3 stem followed by four stages of two residual blocks.
//
//	[32,32,64] => [32,32,64] => [16,16,128] => [8,8,256] => [4,4,512] => 10
func ResNet18() nnet.Config {
	c := nnet.DefaultConfig()
	c.DecayFactor = 0.5
	c.DecayPatience = 5
	c = c.AddLayers(convBN(64, 3, 1, "relu")...)
	nin := 64
	for i, nout := range []int{64, 128, 256, 512} {
		stride := 2
		if i == 0 {
			stride = 1
		}
		c = c.AddLayers(ResBlock(nin, nout, stride)...)
		c = c.AddLayers(ResBlock(nout, nout, 1)...)
		nin = nout
	}
	return c.AddLayers(classifier(
		nnet.Pool{Average: true, Global: true},
		nnet.Flatten{},
	)...)
}
