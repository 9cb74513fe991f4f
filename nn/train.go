package nn

import (
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/config"
	"github.com/plasmago/ltpsurrogate/dataset"
	"github.com/plasmago/ltpsurrogate/ensemble"
	"github.com/plasmago/ltpsurrogate/pkg/errors"
	"github.com/plasmago/ltpsurrogate/pkg/log"
	"github.com/plasmago/ltpsurrogate/physics"
	"github.com/plasmago/ltpsurrogate/preprocessing"
)

// TrainOptions configures a single-network training run. All data is in
// normalized space.
type TrainOptions struct {
	NumEpochs     int
	LearningRate  float64
	BatchSize     int
	EarlyStopping bool
	Patience      int

	// Physics-informed loss: one weight per law. Empty Laws trains a plain
	// data-driven network. Pipeline is required when Laws is non-empty, to
	// evaluate the laws in physical units.
	Laws          []physics.Constraint
	LambdaPhysics []float64
	Pipeline      *preprocessing.Pipeline

	PrintLossValues bool
}

// History records per-epoch mean losses.
type History struct {
	Epochs    []int
	TrainLoss []float64
	ValLoss   []float64
}

// EarlyStopping tracks the best validation score and stops training after a
// fixed number of rounds without improvement.
type EarlyStopping struct {
	Rounds          int
	BestScore       float64
	BestIteration   int
	RoundsNoImprove int
	Enabled         bool
}

// NewEarlyStopping creates an early stopping handler; rounds <= 0 disables it.
func NewEarlyStopping(rounds int) *EarlyStopping {
	if rounds <= 0 {
		return &EarlyStopping{Enabled: false}
	}
	return &EarlyStopping{Rounds: rounds, BestScore: math.Inf(1), Enabled: true}
}

// Update records a new validation score and reports whether training should
// stop. It returns improved = true when the score is a new best.
func (es *EarlyStopping) Update(iteration int, score float64) (stop, improved bool) {
	if !es.Enabled {
		return false, false
	}
	if score < es.BestScore {
		es.BestScore = score
		es.BestIteration = iteration
		es.RoundsNoImprove = 0
		return false, true
	}
	es.RoundsNoImprove++
	return es.RoundsNoImprove >= es.Rounds, false
}

// adamState carries per-parameter first and second moments.
type adamState struct {
	mW, vW []*mat.Dense
	mB, vB [][]float64
	t      int
}

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

func newAdamState(n *Network) *adamState {
	s := &adamState{}
	for l, w := range n.weights {
		r, c := w.Dims()
		s.mW = append(s.mW, mat.NewDense(r, c, nil))
		s.vW = append(s.vW, mat.NewDense(r, c, nil))
		s.mB = append(s.mB, make([]float64, len(n.biases[l])))
		s.vB = append(s.vB, make([]float64, len(n.biases[l])))
	}
	return s
}

// Train fits one network with minibatch Adam on the MSE loss plus the
// optional physics-informed term. Returns the loss history.
func Train(net *Network, trainX, trainY, valX, valY *mat.Dense, opts TrainOptions, rng *rand.Rand) (*History, error) {
	nTrain, inDim := trainX.Dims()
	_, outDim := trainY.Dims()
	if inDim != net.NumInputs() {
		return nil, errors.NewDataShapeError("nn.Train inputs", net.NumInputs(), inDim, 1)
	}
	if outDim != net.NumOutputs() {
		return nil, errors.NewDataShapeError("nn.Train targets", net.NumOutputs(), outDim, 1)
	}
	if len(opts.Laws) > 0 {
		if opts.Pipeline == nil {
			return nil, errors.NewConfigurationError("nn.pipeline", "pipeline required for physics-informed loss", nil)
		}
		if len(opts.LambdaPhysics) != len(opts.Laws) {
			return nil, errors.NewConfigurationError("lambda_physics", "one weight per law required", opts.LambdaPhysics)
		}
	}

	start := time.Now()
	adam := newAdamState(net)
	es := NewEarlyStopping(0)
	if opts.EarlyStopping {
		es = NewEarlyStopping(opts.Patience)
	}
	var best *snapshot

	history := &History{}
	for epoch := 0; epoch < opts.NumEpochs; epoch++ {
		perm := rng.Perm(nTrain)
		epochLoss := 0.0
		for lo := 0; lo < nTrain; lo += opts.BatchSize {
			hi := lo + opts.BatchSize
			if hi > nTrain {
				hi = nTrain
			}
			batchLoss, err := net.trainBatch(trainX, trainY, perm[lo:hi], adam, opts)
			if err != nil {
				return nil, err
			}
			epochLoss += batchLoss * float64(hi-lo)
		}
		epochLoss /= float64(nTrain)

		valLoss, err := mseLoss(net, valX, valY)
		if err != nil {
			return nil, err
		}

		history.Epochs = append(history.Epochs, epoch)
		history.TrainLoss = append(history.TrainLoss, epochLoss)
		history.ValLoss = append(history.ValLoss, valLoss)

		if opts.PrintLossValues {
			slog.Info("epoch finished",
				log.EpochKey, epoch,
				"train_loss", epochLoss,
				"val_loss", valLoss,
			)
		}

		stop, improved := es.Update(epoch, valLoss)
		if improved {
			best = net.snapshot()
		}
		if stop {
			break
		}
	}
	if best != nil {
		net.restore(best)
	}
	net.trainingTime = time.Since(start).Seconds()
	return history, nil
}

// trainBatch accumulates gradients over a minibatch and applies one Adam
// step. Returns the mean data loss over the batch.
func (n *Network) trainBatch(x, y *mat.Dense, idx []int, adam *adamState, opts TrainOptions) (float64, error) {
	gradW := make([]*mat.Dense, len(n.weights))
	gradB := make([][]float64, len(n.biases))
	for l, w := range n.weights {
		r, c := w.Dims()
		gradW[l] = mat.NewDense(r, c, nil)
		gradB[l] = make([]float64, len(n.biases[l]))
	}

	outDim := n.NumOutputs()
	loss := 0.0
	for _, i := range idx {
		a, z := n.forward(x.RawRowView(i))
		pred := a[len(a)-1]
		target := y.RawRowView(i)

		// MSE data term, mean over output dimensions.
		delta := make([]float64, outDim)
		for j := range pred {
			d := pred[j] - target[j]
			loss += d * d / float64(outDim)
			delta[j] = 2 * d / float64(outDim)
		}

		if len(opts.Laws) > 0 {
			physLoss, physGrad, err := physicsTerm(x.RawRowView(i), pred, opts)
			if err != nil {
				return 0, err
			}
			loss += physLoss
			for j := range delta {
				delta[j] += physGrad[j]
			}
		}

		n.backprop(a, z, delta, gradW, gradB)
	}

	scale := 1 / float64(len(idx))
	adam.t++
	corr1 := 1 - math.Pow(adamBeta1, float64(adam.t))
	corr2 := 1 - math.Pow(adamBeta2, float64(adam.t))
	for l := range n.weights {
		r, c := n.weights[l].Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				g := gradW[l].At(i, j) * scale
				m := adamBeta1*adam.mW[l].At(i, j) + (1-adamBeta1)*g
				v := adamBeta2*adam.vW[l].At(i, j) + (1-adamBeta2)*g*g
				adam.mW[l].Set(i, j, m)
				adam.vW[l].Set(i, j, v)
				step := opts.LearningRate * (m / corr1) / (math.Sqrt(v/corr2) + adamEps)
				n.weights[l].Set(i, j, n.weights[l].At(i, j)-step)
			}
		}
		for i := range n.biases[l] {
			g := gradB[l][i] * scale
			m := adamBeta1*adam.mB[l][i] + (1-adamBeta1)*g
			v := adamBeta2*adam.vB[l][i] + (1-adamBeta2)*g*g
			adam.mB[l][i] = m
			adam.vB[l][i] = v
			n.biases[l][i] -= opts.LearningRate * (m / corr1) / (math.Sqrt(v/corr2) + adamEps)
		}
	}
	return loss * scale, nil
}

// backprop accumulates gradients for one sample given the output-layer error
// delta (dL/d pre-activation of the linear output layer).
func (n *Network) backprop(a, z [][]float64, delta []float64, gradW []*mat.Dense, gradB [][]float64) {
	for l := len(n.weights) - 1; l >= 0; l-- {
		in := a[l]
		for i, d := range delta {
			gradB[l][i] += d
			for j, v := range in {
				gradW[l].Set(i, j, gradW[l].At(i, j)+d*v)
			}
		}
		if l == 0 {
			break
		}
		act := activations[n.acts[l-1]]
		prev := make([]float64, len(a[l]))
		for j := range prev {
			sum := 0.0
			for i, d := range delta {
				sum += d * n.weights[l].At(i, j)
			}
			prev[j] = sum * act.deriv(z[l-1][j])
		}
		delta = prev
	}
}

// physicsTerm evaluates the physics-informed loss and its gradient with
// respect to the normalized prediction. Residuals are made dimensionless by
// dividing by the law's reference side, with the denominator treated as
// constant. Early-epoch predictions can overflow the inverse skew transform;
// those samples contribute no physics term (the data term still constrains
// them).
func physicsTerm(xNorm, predNorm []float64, opts TrainOptions) (float64, []float64, error) {
	grad := make([]float64, len(predNorm))

	xPhys, err := opts.Pipeline.InverseInputsRow(xNorm)
	if err != nil {
		return 0, nil, err
	}
	yPhys, err := opts.Pipeline.InverseOutputsRow(predNorm)
	if err != nil {
		return 0, nil, err
	}
	if errors.CheckVector("physics term", yPhys) != nil {
		return 0, grad, nil
	}
	deriv, err := opts.Pipeline.InverseOutputDerivativeRow(predNorm)
	if err != nil {
		return 0, nil, err
	}

	const eps = 1e-30
	loss := 0.0
	for li, law := range opts.Laws {
		lambda := opts.LambdaPhysics[li]
		if lambda == 0 {
			continue
		}
		scale := 1.0
		if sided, ok := law.(physics.Sided); ok {
			_, rhs, err := sided.Sides(xPhys, yPhys)
			if err != nil {
				return 0, nil, err
			}
			scale = math.Abs(rhs) + eps
		}
		r, err := law.Residual(xPhys, yPhys)
		if err != nil {
			return 0, nil, err
		}
		jac, err := law.Jacobian(xPhys, yPhys)
		if err != nil {
			return 0, nil, err
		}
		for k, rk := range r {
			rho := rk / scale
			loss += lambda * rho * rho
			for j := range grad {
				grad[j] += lambda * 2 * rho / scale * jac.At(k, j) * deriv[j]
			}
		}
	}
	return loss, grad, nil
}

// snapshot captures network parameters for early-stopping restoration.
type snapshot struct {
	weights []*mat.Dense
	biases  [][]float64
}

func (n *Network) snapshot() *snapshot {
	s := &snapshot{}
	for l, w := range n.weights {
		var cp mat.Dense
		cp.CloneFrom(w)
		s.weights = append(s.weights, &cp)
		s.biases = append(s.biases, append([]float64(nil), n.biases[l]...))
	}
	return s
}

func (n *Network) restore(s *snapshot) {
	for l := range n.weights {
		n.weights[l].CloneFrom(s.weights[l])
		copy(n.biases[l], s.biases[l])
	}
}

func mseLoss(net *Network, x, y *mat.Dense) (float64, error) {
	pred, err := net.Predict(x)
	if err != nil {
		return 0, err
	}
	r, c := y.Dims()
	sum := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := pred.At(i, j) - y.At(i, j)
			sum += d * d
		}
	}
	return sum / float64(r*c), nil
}

// TrainBootstrapEnsemble trains cfg.NBootstrapModels networks on bootstrap
// resamples of the training data, in parallel, and returns them as an
// ensemble together with the member-averaged loss history. Each member gets
// a deterministic seed derived from seed.
func TrainBootstrapEnsemble(cfg config.Model, laws []physics.Constraint, pipeline *preprocessing.Pipeline,
	trainX, trainY, valX, valY *mat.Dense, seed int64) (*ensemble.Ensemble, *History, error) {

	n := cfg.NBootstrapModels
	nets := make([]*Network, n)
	histories := make([]*History, n)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed + int64(i)))
			boot := dataset.BootstrapResample(&dataset.Table{Inputs: trainX, Targets: trainY}, rng)

			_, inDim := trainX.Dims()
			_, outDim := trainY.Dims()
			net, err := NewNetwork(inDim, cfg.HiddenSizes, cfg.ActivationFns, outDim, rng)
			if err != nil {
				return err
			}
			opts := TrainOptions{
				NumEpochs:       cfg.NumEpochs,
				LearningRate:    cfg.LearningRate,
				BatchSize:       cfg.BatchSize,
				EarlyStopping:   cfg.EarlyStopping,
				Patience:        cfg.Patience,
				Laws:            laws,
				LambdaPhysics:   cfg.LambdaPhysics,
				Pipeline:        pipeline,
				PrintLossValues: cfg.PrintLossValues,
			}
			hist, err := Train(net, boot.Inputs, boot.Targets, valX, valY, opts, rng)
			if err != nil {
				return errors.Wrapf(err, "bootstrap member %d", i)
			}
			nets[i] = net
			histories[i] = hist
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	members := make([]ensemble.Predictor, n)
	for i, net := range nets {
		members[i] = net
	}
	ens, err := ensemble.New(members...)
	if err != nil {
		return nil, nil, err
	}
	return ens, meanHistory(histories), nil
}

// Networks extracts the concrete networks from an ensemble trained by
// TrainBootstrapEnsemble.
func Networks(e *ensemble.Ensemble) []*Network {
	out := make([]*Network, 0, e.Size())
	for _, m := range e.Members() {
		if net, ok := m.(*Network); ok {
			out = append(out, net)
		}
	}
	return out
}

// TotalTrainingTime sums the members' wall-clock training durations.
func TotalTrainingTime(e *ensemble.Ensemble) float64 {
	total := 0.0
	for _, net := range Networks(e) {
		total += net.TrainingTime()
	}
	return total
}

// meanHistory averages member histories epoch-wise; with early stopping the
// mean at an epoch covers the members still training at that epoch.
func meanHistory(histories []*History) *History {
	maxLen := 0
	for _, h := range histories {
		if len(h.Epochs) > maxLen {
			maxLen = len(h.Epochs)
		}
	}
	out := &History{}
	for e := 0; e < maxLen; e++ {
		var train, val float64
		count := 0
		for _, h := range histories {
			if e < len(h.Epochs) {
				train += h.TrainLoss[e]
				val += h.ValLoss[e]
				count++
			}
		}
		out.Epochs = append(out.Epochs, e)
		out.TrainLoss = append(out.TrainLoss, train/float64(count))
		out.ValLoss = append(out.ValLoss, val/float64(count))
	}
	return out
}
