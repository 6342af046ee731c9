package pennant

import "log/slog"

// The three evaluation entry points. Each takes one datafile snapshot at
// entry and operates on it for the entire decision, including recursive
// required-feature checks. They never return Go errors; every failure
// mode is encoded in the Evaluation's Reason.

// EvaluateFlag decides whether a feature is enabled for the context.
func (i *Instance) EvaluateFlag(featureKey string, context Context) Evaluation {
	evaluation := i.evaluateFlag(i.snapshot(), featureKey, context, regexCache{})
	i.finishEvaluation("flag", evaluation)
	return evaluation
}

// EvaluateVariation decides which variation applies for the context.
func (i *Instance) EvaluateVariation(featureKey string, context Context) Evaluation {
	evaluation := i.evaluateVariation(i.snapshot(), featureKey, context, regexCache{})
	i.finishEvaluation("variation", evaluation)
	return evaluation
}

// EvaluateVariable resolves one typed variable for the context.
func (i *Instance) EvaluateVariable(featureKey string, variableKey string, context Context) Evaluation {
	evaluation := i.evaluateVariable(i.snapshot(), featureKey, variableKey, context, regexCache{})
	i.finishEvaluation("variable", evaluation)
	return evaluation
}

func (i *Instance) finishEvaluation(kind string, evaluation Evaluation) {
	i.recordEvaluation(kind, evaluation.Reason)
	i.logger.Debug("evaluation",
		slog.String("type", kind),
		slog.String("feature", evaluation.FeatureKey),
		slog.String("reason", string(evaluation.Reason)),
	)
}

func (i *Instance) evaluateFlag(view *datafileView, featureKey string, context Context, rc regexCache) Evaluation {
	// Sticky overrides beat every other source.
	if sticky, ok := i.stickyFor(featureKey); ok && sticky.Enabled != nil {
		return Evaluation{
			FeatureKey: featureKey,
			Reason:     ReasonSticky,
			Enabled:    sticky.Enabled,
			Sticky:     &sticky,
		}
	}

	// Initial overrides for flag evaluation apply once the instance is
	// ready, while the variation and variable paths apply them only while
	// it is NOT ready. The asymmetry is carried over unchanged from
	// upstream, where it looks unintended; it is flagged for
	// clarification rather than silently aligned.
	if i.IsReady() {
		if initial, ok := i.initialFor(featureKey); ok && initial.Enabled != nil {
			return Evaluation{
				FeatureKey: featureKey,
				Reason:     ReasonInitial,
				Enabled:    initial.Enabled,
				Initial:    &initial,
			}
		}
	}

	feature := view.features[featureKey]
	if feature == nil {
		return Evaluation{
			FeatureKey: featureKey,
			Reason:     ReasonNotFound,
			Enabled:    boolRef(false),
		}
	}

	if feature.Deprecated {
		i.logger.Warn("feature is deprecated", slog.String("feature", featureKey))
	}

	finalContext := i.interceptedContext(context)

	// Force lookups intentionally use the original context while
	// bucketing below uses the intercepted one.
	if force := matchedForce(feature, context, view, rc); force != nil && force.Enabled != nil {
		return Evaluation{
			FeatureKey: featureKey,
			Reason:     ReasonForced,
			Enabled:    force.Enabled,
		}
	}

	for _, required := range feature.Required {
		requiredFlag := i.evaluateFlag(view, required.Key, context, rc)
		if requiredFlag.Enabled == nil || !*requiredFlag.Enabled {
			return Evaluation{
				FeatureKey: featureKey,
				Reason:     ReasonRequired,
				Enabled:    boolRef(false),
			}
		}
		if required.Variation != "" {
			requiredVariation := i.evaluateVariation(view, required.Key, context, rc)
			if requiredVariation.VariationValue == nil || *requiredVariation.VariationValue != required.Variation {
				return Evaluation{
					FeatureKey: featureKey,
					Reason:     ReasonRequired,
					Enabled:    boolRef(false),
				}
			}
		}
	}

	bucketKey, bucketValue := i.bucketValueFor(feature, finalContext)
	matched := matchedTraffic(feature.Traffic, finalContext, view, rc)

	// Features participating in a mutual-exclusion group carry ranges;
	// the bucket value must land inside one for the feature to turn on.
	if len(feature.Ranges) > 0 {
		if matchedRange(feature.Ranges, bucketValue) {
			enabled := true
			ruleKey := ""
			if matched != nil {
				ruleKey = matched.Key
				if matched.Enabled != nil {
					enabled = *matched.Enabled
				}
			}
			return Evaluation{
				FeatureKey:  featureKey,
				Reason:      ReasonAllocated,
				Enabled:     boolRef(enabled),
				BucketKey:   bucketKey,
				BucketValue: intRef(bucketValue),
				RuleKey:     ruleKey,
			}
		}
		return Evaluation{
			FeatureKey:  featureKey,
			Reason:      ReasonOutOfRange,
			Enabled:     boolRef(false),
			BucketKey:   bucketKey,
			BucketValue: intRef(bucketValue),
		}
	}

	if matched != nil {
		if matched.Enabled != nil {
			return Evaluation{
				FeatureKey:  featureKey,
				Reason:      ReasonOverride,
				Enabled:     matched.Enabled,
				BucketKey:   bucketKey,
				BucketValue: intRef(bucketValue),
				RuleKey:     matched.Key,
			}
		}

		// Percentage is an exclusive upper bound over [0, percentage),
		// mirroring the half-open allocation ranges.
		if bucketValue < matched.Percentage {
			return Evaluation{
				FeatureKey:  featureKey,
				Reason:      ReasonRule,
				Enabled:     boolRef(true),
				BucketKey:   bucketKey,
				BucketValue: intRef(bucketValue),
				RuleKey:     matched.Key,
			}
		}
	}

	// No traffic rule decided the flag. "error" is the historical
	// no-match sentinel, preserved for wire compatibility. When a rule
	// matched but failed the rollout check, RuleKey still names it.
	ruleKey := ""
	if matched != nil {
		ruleKey = matched.Key
	}
	return Evaluation{
		FeatureKey:  featureKey,
		Reason:      ReasonError,
		Enabled:     boolRef(false),
		BucketKey:   bucketKey,
		BucketValue: intRef(bucketValue),
		RuleKey:     ruleKey,
	}
}

func (i *Instance) evaluateVariation(view *datafileView, featureKey string, context Context, rc regexCache) Evaluation {
	flag := i.evaluateFlag(view, featureKey, context, rc)
	if flag.Enabled == nil || !*flag.Enabled {
		// A force entry that turned the feature off may still pin a
		// variation (QA contexts do exactly this); the pinned variation
		// resolves even though the flag is disabled.
		if feature := view.features[featureKey]; feature != nil {
			if force := matchedForce(feature, context, view, rc); force != nil && force.Variation != "" {
				if variation := findVariation(feature, force.Variation); variation != nil {
					return Evaluation{
						FeatureKey:     featureKey,
						Reason:         ReasonForced,
						Enabled:        boolRef(false),
						VariationValue: stringRef(variation.Value),
					}
				}
			}
		}
		return Evaluation{
			FeatureKey: featureKey,
			Reason:     ReasonDisabled,
			Enabled:    boolRef(false),
		}
	}

	if sticky, ok := i.stickyFor(featureKey); ok && sticky.Variation != nil {
		return Evaluation{
			FeatureKey:     featureKey,
			Reason:         ReasonSticky,
			VariationValue: sticky.Variation,
			Sticky:         &sticky,
		}
	}

	if !i.IsReady() {
		if initial, ok := i.initialFor(featureKey); ok && initial.Variation != nil {
			return Evaluation{
				FeatureKey:     featureKey,
				Reason:         ReasonInitial,
				VariationValue: initial.Variation,
				Initial:        &initial,
			}
		}
	}

	feature := view.features[featureKey]
	if feature == nil {
		return Evaluation{FeatureKey: featureKey, Reason: ReasonNotFound}
	}
	if len(feature.Variations) == 0 {
		return Evaluation{FeatureKey: featureKey, Reason: ReasonNoVariations}
	}

	finalContext := i.interceptedContext(context)

	if force := matchedForce(feature, context, view, rc); force != nil && force.Variation != "" {
		if variation := findVariation(feature, force.Variation); variation != nil {
			return Evaluation{
				FeatureKey:     featureKey,
				Reason:         ReasonForced,
				VariationValue: stringRef(variation.Value),
			}
		}
	}

	bucketKey, bucketValue := i.bucketValueFor(feature, finalContext)

	if matched := matchedTraffic(feature.Traffic, finalContext, view, rc); matched != nil {
		if matched.Variation != "" {
			if variation := findVariation(feature, matched.Variation); variation != nil {
				return Evaluation{
					FeatureKey:     featureKey,
					Reason:         ReasonRule,
					BucketKey:      bucketKey,
					BucketValue:    intRef(bucketValue),
					RuleKey:        matched.Key,
					VariationValue: stringRef(variation.Value),
				}
			}
		}

		if allocation := matchedAllocation(matched, bucketValue); allocation != nil {
			if variation := findVariation(feature, allocation.Variation); variation != nil {
				return Evaluation{
					FeatureKey:     featureKey,
					Reason:         ReasonAllocated,
					BucketKey:      bucketKey,
					BucketValue:    intRef(bucketValue),
					RuleKey:        matched.Key,
					VariationValue: stringRef(variation.Value),
				}
			}
		}
	}

	return Evaluation{
		FeatureKey:  featureKey,
		Reason:      ReasonError,
		BucketKey:   bucketKey,
		BucketValue: intRef(bucketValue),
	}
}

func (i *Instance) evaluateVariable(view *datafileView, featureKey string, variableKey string, context Context, rc regexCache) Evaluation {
	flag := i.evaluateFlag(view, featureKey, context, rc)
	if flag.Enabled == nil || !*flag.Enabled {
		return Evaluation{
			FeatureKey:  featureKey,
			Reason:      ReasonDisabled,
			Enabled:     boolRef(false),
			VariableKey: variableKey,
		}
	}

	if sticky, ok := i.stickyFor(featureKey); ok && sticky.Variables != nil {
		if value, present := sticky.Variables[variableKey]; present {
			return Evaluation{
				FeatureKey:    featureKey,
				Reason:        ReasonSticky,
				VariableKey:   variableKey,
				VariableValue: value,
				Sticky:        &sticky,
			}
		}
	}

	if !i.IsReady() {
		if initial, ok := i.initialFor(featureKey); ok && initial.Variables != nil {
			if value, present := initial.Variables[variableKey]; present {
				return Evaluation{
					FeatureKey:    featureKey,
					Reason:        ReasonInitial,
					VariableKey:   variableKey,
					VariableValue: value,
					Initial:       &initial,
				}
			}
		}
	}

	feature := view.features[featureKey]
	if feature == nil {
		return Evaluation{FeatureKey: featureKey, Reason: ReasonNotFound, VariableKey: variableKey}
	}

	schema := findVariableSchema(feature, variableKey)
	if schema == nil {
		i.logger.Warn("variable schema not found",
			slog.String("feature", featureKey),
			slog.String("variable", variableKey),
		)
		return Evaluation{FeatureKey: featureKey, Reason: ReasonNotFound, VariableKey: variableKey}
	}

	finalContext := i.interceptedContext(context)

	if force := matchedForce(feature, context, view, rc); force != nil && force.Variables != nil {
		if value, present := force.Variables[variableKey]; present {
			return Evaluation{
				FeatureKey:     featureKey,
				Reason:         ReasonForced,
				VariableKey:    variableKey,
				VariableValue:  value,
				VariableSchema: schema,
			}
		}
	}

	bucketKey, bucketValue := i.bucketValueFor(feature, finalContext)

	if matched := matchedTraffic(feature.Traffic, finalContext, view, rc); matched != nil {
		if matched.Variables != nil {
			if value, present := matched.Variables[variableKey]; present {
				return Evaluation{
					FeatureKey:     featureKey,
					Reason:         ReasonRule,
					BucketKey:      bucketKey,
					BucketValue:    intRef(bucketValue),
					RuleKey:        matched.Key,
					VariableKey:    variableKey,
					VariableValue:  value,
					VariableSchema: schema,
				}
			}
		}

		if allocation := matchedAllocation(matched, bucketValue); allocation != nil {
			if variation := findVariation(feature, allocation.Variation); variation != nil {
				if entry := findVariationVariable(variation, variableKey); entry != nil {
					for idx := range entry.Overrides {
						override := &entry.Overrides[idx]
						if !matchVariableOverride(override, finalContext, view, rc) {
							continue
						}
						return Evaluation{
							FeatureKey:     featureKey,
							Reason:         ReasonOverride,
							BucketKey:      bucketKey,
							BucketValue:    intRef(bucketValue),
							RuleKey:        matched.Key,
							VariableKey:    variableKey,
							VariableValue:  override.Value,
							VariableSchema: schema,
						}
					}
					if entry.Value != nil {
						return Evaluation{
							FeatureKey:     featureKey,
							Reason:         ReasonAllocated,
							BucketKey:      bucketKey,
							BucketValue:    intRef(bucketValue),
							RuleKey:        matched.Key,
							VariableKey:    variableKey,
							VariableValue:  entry.Value,
							VariableSchema: schema,
						}
					}
				}
			}
		}
	}

	return Evaluation{
		FeatureKey:     featureKey,
		Reason:         ReasonDefaulted,
		VariableKey:    variableKey,
		VariableValue:  schema.DefaultValue,
		VariableSchema: schema,
	}
}

func matchVariableOverride(override *VariableOverride, context Context, view *datafileView, rc regexCache) bool {
	if override.Conditions != nil {
		return matchCondition(override.Conditions, context, rc)
	}
	if override.Segments != nil {
		return matchGroupSegments(override.Segments, context, view, rc)
	}
	return false
}

func findVariation(feature *Feature, value string) *Variation {
	for idx := range feature.Variations {
		if feature.Variations[idx].Value == value {
			return &feature.Variations[idx]
		}
	}
	return nil
}

func findVariationVariable(variation *Variation, variableKey string) *VariationVariable {
	for idx := range variation.Variables {
		if variation.Variables[idx].Key == variableKey {
			return &variation.Variables[idx]
		}
	}
	return nil
}

func findVariableSchema(feature *Feature, variableKey string) *VariableSchema {
	for idx := range feature.VariablesSchema {
		if feature.VariablesSchema[idx].Key == variableKey {
			return &feature.VariablesSchema[idx]
		}
	}
	return nil
}
