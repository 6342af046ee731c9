// Package bucket maps bucket-key strings to deterministic integers in
// [0, MaxBucketedNumber). The hash is part of the wire contract shared by
// every client implementation: changing it silently reassigns every user.
package bucket

import (
	"strings"

	"github.com/spaolacci/murmur3"
)

// MaxBucketedNumber is the exclusive upper bound of the bucket space.
const MaxBucketedNumber = 100000

const hashSeed = 1

// Value hashes a bucket key into [0, MaxBucketedNumber) using MurmurHash3
// (32-bit, seed 1) over the UTF-8 bytes of the key, scaled with unsigned
// 64-bit arithmetic.
func Value(key string) int {
	hash := murmur3.Sum32WithSeed([]byte(key), hashSeed)
	return int(uint64(hash) * MaxBucketedNumber >> 32)
}

// Key joins the rendered attribute values and the feature key with the
// given separator.
func Key(parts []string, separator string) string {
	return strings.Join(parts, separator)
}
