// Package flood turns aligned Sentinel-1 cubes into flood maps. It fuses the
// backscatter, harmonic parameter and incidence angle cubes, evaluates the
// expected land and water backscatter, classifies every pixel with Bayes' rule
// and suppresses unreliable classifications.
package flood
