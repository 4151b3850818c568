package registration

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/chris9182/Open3D/pointcloud"
	"github.com/chris9182/Open3D/spatialmath"
)

// FullResolutionVoxelSize marks a scale that uses the clouds unmodified
// instead of a downsampled copy. Only the finest scale may use it.
const FullResolutionVoxelSize = -1

// ProgressUpdate is delivered to the progress callback once per inner
// iteration of the registration loop.
type ProgressUpdate struct {
	// Scale is the pyramid level, 0 being the coarsest.
	Scale int
	// Iteration counts from 0 within the scale.
	Iteration int
	// Fitness and InlierRMSE describe the alignment after the iteration.
	Fitness    float64
	InlierRMSE float64
	// Transformation is the cumulative transform after the iteration.
	Transformation *spatialmath.RigidTransform
}

// Config collects everything a multi-scale registration run needs. The
// three per-scale slices are parallel, ordered coarsest to finest.
type Config struct {
	// VoxelSizes gives the downsampling voxel size per scale, decreasing
	// toward the finest scale. The finest entry may be
	// FullResolutionVoxelSize to skip downsampling entirely.
	VoxelSizes []float64
	// SearchRadii bounds the correspondence distance per scale.
	SearchRadii []float64
	// Criteria terminates the inner loop per scale.
	Criteria []ICPConvergenceCriteria
	// Estimation is the transformation strategy for the whole run.
	Estimation TransformationEstimation
	// InitialTransformation seeds the cumulative transform; nil means
	// identity.
	InitialTransformation *spatialmath.RigidTransform
	// Logger receives per-iteration reporting. nil disables logging.
	Logger golog.Logger
	// Clock is used to time the run; nil uses the wall clock.
	Clock clock.Clock
	// Progress, when set, is invoked after every inner iteration.
	Progress func(ProgressUpdate)
	// Snapshot, when set, receives the full-resolution source cloud
	// re-transformed after every inner iteration, for a display thread.
	Snapshot *SnapshotBuffer
}

// Validate reports every configuration problem at once. It must pass before
// any search executes.
func (cfg *Config) Validate() error {
	var err error
	n := len(cfg.VoxelSizes)
	if n == 0 {
		err = multierr.Append(err, errors.New("at least one scale is required"))
	}
	if len(cfg.SearchRadii) != n {
		err = multierr.Append(err,
			errors.Errorf("voxel sizes and search radii must have the same length, got %d and %d", n, len(cfg.SearchRadii)))
	}
	if len(cfg.Criteria) != n {
		err = multierr.Append(err,
			errors.Errorf("voxel sizes and criteria must have the same length, got %d and %d", n, len(cfg.Criteria)))
	}
	for i, size := range cfg.VoxelSizes {
		if size > 0 {
			continue
		}
		if size == FullResolutionVoxelSize && i == n-1 {
			continue
		}
		err = multierr.Append(err, errors.Errorf("voxel size %f at scale %d is invalid", size, i))
	}
	for i, c := range cfg.Criteria {
		if c.MaxIterations <= 0 {
			err = multierr.Append(err, errors.Errorf("max iterations at scale %d must be positive, got %d", i, c.MaxIterations))
		}
	}
	if cfg.Estimation == nil {
		err = multierr.Append(err, errors.New("a transformation estimation strategy is required"))
	}
	return err
}

// RegisterMultiScaleICP aligns source onto target over a coarse-to-fine
// pyramid of downsampled clouds, running the correspondence and estimation
// loop at every scale until its convergence criteria fire or its iteration
// budget runs out. Every scale is visited in order regardless of how the
// previous one exited. The context is observed at iteration boundaries: on
// cancellation the partial result accumulated so far is returned together
// with the context's error.
func RegisterMultiScaleICP(
	ctx context.Context,
	source, target pointcloud.PointCloud,
	cfg Config,
) (RegistrationResult, error) {
	if err := cfg.Validate(); err != nil {
		return RegistrationResult{}, errors.Wrap(err, "invalid registration configuration")
	}
	if source == nil || source.Size() == 0 {
		return RegistrationResult{}, errors.New("source point cloud is empty")
	}
	if target == nil || target.Size() == 0 {
		return RegistrationResult{}, errors.New("target point cloud is empty")
	}
	if _, ok := cfg.Estimation.(*PointToPlane); ok && !target.MetaData().HasNormal {
		return RegistrationResult{}, errors.New("point-to-plane registration requires a target with normals")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	start := clk.Now()

	sourcePyramid, targetPyramid, err := buildPyramid(source, target, cfg.VoxelSizes)
	if err != nil {
		return RegistrationResult{}, err
	}

	cumulative := cfg.InitialTransformation
	if cumulative == nil {
		cumulative = spatialmath.NewRigidTransform()
	}
	result := RegistrationResult{Transformation: cumulative}

	for i := range cfg.VoxelSizes {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		tree, err := pointcloud.ToKDTree(targetPyramid[i])
		if err != nil {
			return result, errors.Wrapf(err, "building target index for scale %d", i)
		}
		targetBuf := BufferFromKDTree(tree)
		sourceBuf := BufferFromCloud(sourcePyramid[i])

		transformed := make([]r3.Vector, len(sourceBuf.Points))
		for k, p := range sourceBuf.Points {
			transformed[k] = cumulative.TransformVec(p)
		}
		result = EvaluateRegistration(transformed, tree, cfg.SearchRadii[i], cumulative)

		crit := cfg.Criteria[i]
		for j := 0; j < crit.MaxIterations; j++ {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			logger.Infof("ICP scale #%d iteration #%d: fitness %.4f, inlier RMSE %.4f",
				i+1, j, result.Fitness, result.InlierRMSE)

			delta, err := cfg.Estimation.ComputeTransformation(
				&CloudBuffer{Points: transformed}, targetBuf, result.Correspondences)
			if err != nil {
				// Degenerate iterations end the scale but not the run.
				logger.Warnw("ending scale early",
					"scale", i+1, "iteration", j, "error", err)
				break
			}

			// The delta maps the current alignment one step closer, so it
			// composes onto the left of the cumulative transform.
			cumulative = cumulative.Compose(delta)
			for k, p := range transformed {
				transformed[k] = delta.TransformVec(p)
			}

			prevFitness, prevRMSE := result.Fitness, result.InlierRMSE
			result = EvaluateRegistration(transformed, tree, cfg.SearchRadii[i], cumulative)

			if cfg.Progress != nil {
				cfg.Progress(ProgressUpdate{
					Scale:          i,
					Iteration:      j,
					Fitness:        result.Fitness,
					InlierRMSE:     result.InlierRMSE,
					Transformation: cumulative,
				})
			}
			if cfg.Snapshot != nil {
				if snap, err := pointcloud.TransformCloud(source, cumulative); err == nil {
					cfg.Snapshot.Store(snap)
				}
			}

			if crit.isConverged(j, prevFitness, result.Fitness, prevRMSE, result.InlierRMSE) {
				break
			}
		}
	}

	logger.Infow("registration finished",
		"elapsed", clk.Since(start),
		"fitness", result.Fitness,
		"inlierRMSE", result.InlierRMSE)
	return result, nil
}

// buildPyramid downsamples the clouds from the finest requested scale
// backward, each coarser level derived from the one below it.
func buildPyramid(source, target pointcloud.PointCloud, voxelSizes []float64) ([]pointcloud.PointCloud, []pointcloud.PointCloud, error) {
	n := len(voxelSizes)
	sourcePyramid := make([]pointcloud.PointCloud, n)
	targetPyramid := make([]pointcloud.PointCloud, n)

	finest := n - 1
	if voxelSizes[finest] == FullResolutionVoxelSize {
		sourcePyramid[finest] = source
		targetPyramid[finest] = target
	} else {
		var err error
		if sourcePyramid[finest], err = pointcloud.VoxelDownsample(source, voxelSizes[finest]); err != nil {
			return nil, nil, errors.Wrap(err, "downsampling source")
		}
		if targetPyramid[finest], err = pointcloud.VoxelDownsample(target, voxelSizes[finest]); err != nil {
			return nil, nil, errors.Wrap(err, "downsampling target")
		}
	}
	for k := finest - 1; k >= 0; k-- {
		var err error
		if sourcePyramid[k], err = pointcloud.VoxelDownsample(sourcePyramid[k+1], voxelSizes[k]); err != nil {
			return nil, nil, errors.Wrapf(err, "downsampling source for scale %d", k)
		}
		if targetPyramid[k], err = pointcloud.VoxelDownsample(targetPyramid[k+1], voxelSizes[k]); err != nil {
			return nil, nil, errors.Wrapf(err, "downsampling target for scale %d", k)
		}
	}
	return sourcePyramid, targetPyramid, nil
}
