// Package ltpsurrogate provides neural-network surrogate models for
// low-temperature plasma simulation outputs, together with a constrained
// projection step that corrects predictions onto the physical laws the
// plasma must satisfy (quasi-neutrality, ideal-gas pressure balance, and
// ionization rate balance).
//
// The module is organized as a pipeline:
//
//   - dataset loads the solver tables and handles splitting and subsampling
//   - preprocessing fits the per-feature scaling (with log1p handling of
//     skewed features) and exposes the inverse transforms and their
//     derivatives
//   - nn trains bootstrap ensembles of feedforward networks with minibatch
//     Adam, optionally with a physics-informed loss term
//   - ensemble aggregates member predictions into a mean and a standard
//     error of the mean
//   - physics defines the constraint laws and their Jacobians
//   - projection applies the weighted minimal correction that restores the
//     laws to first order
//   - evaluation computes MAPE, RMSE, and per-law compliance
//   - report writes the CSV tables and figures
//   - experiment orchestrates the model variants and the architecture and
//     dataset-size sweeps
//
// The cmd/ltpsurrogate command wires these together from a YAML
// configuration.
package ltpsurrogate
