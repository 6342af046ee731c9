package pennant

import (
	"github.com/pennant-io/pennant-go/internal/bucket"
)

// maxBucketValue mirrors bucket.MaxBucketedNumber for range validation and
// percentage checks.
const maxBucketValue = bucket.MaxBucketedNumber

// DefaultBucketKeySeparator joins bucket-key parts unless overridden.
const DefaultBucketKeySeparator = "."

// ConfigureBucketKeyFunc lets the embedder replace the assembled bucket
// key before hashing.
type ConfigureBucketKeyFunc func(featureKey string, context Context, bucketKey string) string

// ConfigureBucketValueFunc lets the embedder post-adjust the hashed bucket
// value.
type ConfigureBucketValueFunc func(featureKey string, context Context, bucketValue int) int

// bucketKeyFor assembles the bucket key for a feature and context per the
// feature's bucketBy policy: "plain" takes the one attribute, "and" takes
// every present attribute in order, "or" takes only the first present one.
// The feature key is always the final part.
func (i *Instance) bucketKeyFor(feature *Feature, context Context) string {
	var parts []string

	appendValue := func(attributeKey string) bool {
		raw, ok := context[attributeKey]
		if !ok {
			return false
		}
		rendered, ok := attributeValueString(raw)
		if !ok {
			return false
		}
		parts = append(parts, rendered)
		return true
	}

	switch {
	case feature.BucketBy.Single != "":
		appendValue(feature.BucketBy.Single)
	case feature.BucketBy.Or != nil:
		for _, key := range feature.BucketBy.Or {
			if appendValue(key) {
				break
			}
		}
	default:
		for _, key := range feature.BucketBy.And {
			appendValue(key)
		}
	}

	parts = append(parts, feature.Key)
	key := bucket.Key(parts, i.bucketKeySeparator)

	if i.configureBucketKey != nil {
		key = i.configureBucketKey(feature.Key, context, key)
	}
	return key
}

// bucketValueFor hashes the feature's bucket key for the given context.
func (i *Instance) bucketValueFor(feature *Feature, context Context) (string, int) {
	key := i.bucketKeyFor(feature, context)
	value := bucket.Value(key)
	if i.configureBucketValue != nil {
		value = i.configureBucketValue(feature.Key, context, value)
	}
	return key, value
}
