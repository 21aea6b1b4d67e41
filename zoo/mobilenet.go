package zoo

import "github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"

// MobileNet v1: see https://arxiv.org/abs/1704.04861

// pointwise output channels and depthwise stride for each separable block
var mobileBlocks = []struct{ nout, stride int }{
	{64, 1}, {128, 2}, {128, 1}, {256, 2}, {256, 1}, {512, 2},
	{512, 1}, {512, 1}, {512, 1}, {512, 1}, {512, 1},
	{1024, 2}, {1024, 1},
}

func separable(nout, stride int) []nnet.ConfigLayer {
	return append([]nnet.ConfigLayer{
		nnet.DepthwiseConv{Size: 3, Stride: stride, Pad: true, NoBias: true},
		nnet.BatchNorm{},
		nnet.Activation{Atype: "relu6"},
	}, convBN(nout, 1, 1, "relu6")...)
}

// MobileNet builds the network with the width of each layer scaled by alpha.
//
//	[32,32,3] => [16,16,32a] => [8,8,128a] => [4,4,256a] => [2,2,512a] => [1,1,1024a] => 10
func MobileNet(alpha float64) nnet.Config {
	width := func(n int) int { return max(1, int(float64(n)*alpha)) }
	c := nnet.DefaultConfig()
	c.DecayFactor = 0.5
	c.DecayPatience = 5
	c = c.AddLayers(convBN(width(32), 3, 2, "relu6")...)
	for _, b := range mobileBlocks {
		c = c.AddLayers(separable(width(b.nout), b.stride)...)
	}
	return c.AddLayers(classifier(
		nnet.Pool{Average: true, Global: true},
		nnet.Flatten{},
		nnet.Dropout{Ratio: 1e-3},
	)...)
}
