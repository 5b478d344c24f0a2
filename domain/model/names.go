// Package model holds the fixed identifiers of the resonance workspace and
// the value types exchanged with a fit engine.
package model

import "fmt"

// Fixed workspace identifiers.
const (
	WorkspaceName  = "combination"
	ObservableName = "gg_mass"
	CategoryName   = "channellist"

	POI      = "npbBSM"
	Mass     = "mHiggs"
	BiasNP   = "BIAS"
	BiasAdj  = "bias_adj"
	POIAdj   = "npbBSM_adj"
	AltModel = "pdf_alt"
)

// Categories lists the channel categories in canonical order. Every
// per-category name below is built from this list so the two categories
// always receive identical treatment.
var Categories = []string{"bj", "bb"}

// ShapeComponents lists the background shape components in canonical order.
var ShapeComponents = []string{"peak", "tail", "width"}

// ConstraintComponents lists the shape-constraint suffixes matching ShapeComponents.
var ConstraintComponents = []string{"shape", "tail", "width"}

// SpuriousSignal returns the spurious-signal nuisance for a category.
func SpuriousSignal(cat string) string { return "bias_" + cat }

// NormConstraint returns the normalization-constraint nuisance for a category.
func NormConstraint(cat string) string { return "bkg_constraint_" + cat }

// NormParam returns the fit-normalization parameter for a category.
func NormParam(cat string) string { return fmt.Sprintf("nbkg_fit_%s_%s", cat, cat) }

// ShapeParam returns the Novosibirsk shape parameter for a component and category.
func ShapeParam(component, cat string) string {
	return fmt.Sprintf("novosibirsk_%s_%s", component, cat)
}

// ShapeConstraint returns the shape-constraint nuisance for a component and category.
func ShapeConstraint(component, cat string) string {
	return fmt.Sprintf("bkg_constraint_%s_%s", component, cat)
}

// perCategory expands each item over Categories, items outermost.
func perCategory(items []string, name func(item, cat string) string) []string {
	out := make([]string, 0, len(items)*len(Categories))
	for _, item := range items {
		for _, cat := range Categories {
			out = append(out, name(item, cat))
		}
	}
	return out
}

// SpuriousSignals lists bias_bj, bias_bb.
func SpuriousSignals() []string {
	return perCategory([]string{""}, func(_, cat string) string { return SpuriousSignal(cat) })
}

// NormConstraints lists bkg_constraint_bj, bkg_constraint_bb.
func NormConstraints() []string {
	return perCategory([]string{""}, func(_, cat string) string { return NormConstraint(cat) })
}

// NormParams lists nbkg_fit_bj_bj, nbkg_fit_bb_bb.
func NormParams() []string {
	return perCategory([]string{""}, func(_, cat string) string { return NormParam(cat) })
}

// ShapeParams lists the six Novosibirsk shape parameters.
func ShapeParams() []string { return perCategory(ShapeComponents, ShapeParam) }

// ShapeConstraints lists the six shape-constraint nuisances.
func ShapeConstraints() []string { return perCategory(ConstraintComponents, ShapeConstraint) }

// NuisanceParameters lists every constrained nuisance of the resonance model.
func NuisanceParameters() []string {
	out := []string{BiasNP}
	out = append(out, SpuriousSignals()...)
	out = append(out, NormConstraints()...)
	out = append(out, ShapeConstraints()...)
	return out
}

// RequiredParameters lists every parameter a workspace must declare.
func RequiredParameters() []string {
	out := []string{POI, Mass}
	out = append(out, NuisanceParameters()...)
	out = append(out, NormParams()...)
	out = append(out, ShapeParams()...)
	return out
}
