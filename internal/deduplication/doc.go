// Package deduplication decides whether an incoming bug report describes a
// bug that is already on file.
//
// # Rules
//
// Rules run in order and the first match wins:
//
//  1. Category: an open bug on the same page (testUrl) with the same
//     AI category and the same title, compared trimmed and case-insensitively.
//  2. Similarity: the first bug, in insertion order, whose title+summary
//     shares at least SimilarityThreshold of its keywords with the report.
//     When the report names a page only bugs on that page are compared.
//     Closed bugs are eligible so callers can reject re-reports of fixed bugs.
//  3. Semantic (off by default): the closest bug on the same page by cosine
//     similarity of embeddings, if at least SemanticThreshold.
//
// # Keyword overlap
//
// Both texts are lower-cased, a few synonyms are folded ("charges" → "charge",
// "twice" → "double", "customers" → "customer"), and every run of non-word
// characters becomes a space. The score is |common words| divided by the size
// of the smaller word set, so a short report fully contained in a longer one
// scores 1.0.
//
// # Candidate window
//
// The similarity and semantic rules compare against at most MaxCandidates
// bugs (per page when the report names one), keeping the newest. While a
// page has no more bugs than that, every bug is compared, oldest included.
// Past the cap, bugs older than the window are never matched; raise
// BT_DEDUP_MAX_CANDIDATES for pages that collect more reports.
//
// # Configuration
//
// DefaultConfig matches the production thresholds. ConfigFromEnv reads the
// BT_DEDUP_* variables on top of the defaults.
package deduplication
