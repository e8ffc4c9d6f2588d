package stage

import (
	"crypto/sha256"
	"sort"
	"strings"
	"unicode"
)

// FleschKincaidGrade computes the Flesch-Kincaid grade level using the
// standard coefficients: 0.39*(words/sentences) + 11.8*(syllables/words)
// - 15.59. Grounded on spec.md §4.4's numeric semantics line; these are
// the literal published coefficients, not a tunable the codebase owns.
func FleschKincaidGrade(text string) float64 {
	words := wordsOf(text)
	if len(words) == 0 {
		return 0
	}
	sentences := countSentences(text)
	if sentences == 0 {
		sentences = 1
	}
	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}

	wordsPerSentence := float64(len(words)) / float64(sentences)
	syllablesPerWord := float64(syllables) / float64(len(words))

	return 0.39*wordsPerSentence + 11.8*syllablesPerWord - 15.59
}

func wordsOf(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func countSentences(text string) int {
	count := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	return count
}

func countSyllables(word string) int {
	word = strings.ToLower(word)
	if word == "" {
		return 0
	}
	vowels := "aeiouy"
	count := 0
	prevWasVowel := false
	for _, r := range word {
		isVowel := strings.ContainsRune(vowels, r)
		if isVowel && !prevWasVowel {
			count++
		}
		prevWasVowel = isVowel
	}
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}

// KeywordCount is one token's observed frequency, for the top-20 keyword
// list §4.4 describes: "up to 20 tokens sorted by frequency desc, then
// lexicographic asc."
type KeywordCount struct {
	Token string
	Count int
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "is": true, "it": true, "that": true, "for": true,
	"on": true, "with": true, "as": true, "was": true, "at": true, "by": true,
	"this": true, "be": true, "are": true, "from": true,
}

// TopKeywords returns up to 20 tokens sorted by frequency descending,
// ties broken lexicographically ascending.
func TopKeywords(text string) []KeywordCount {
	counts := make(map[string]int)
	for _, w := range wordsOf(text) {
		lw := strings.ToLower(w)
		if len(lw) < 3 || stopwords[lw] {
			continue
		}
		counts[lw]++
	}

	list := make([]KeywordCount, 0, len(counts))
	for token, count := range counts {
		list = append(list, KeywordCount{Token: token, Count: count})
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].Token < list[j].Token
	})

	if len(list) > 20 {
		list = list[:20]
	}
	return list
}

// merkleLeafSize is the 4 KiB leaf size §4.4 specifies.
const merkleLeafSize = 4096

// MerkleRoot computes the Merkle root of data using 4 KiB leaves,
// SHA-256 nodes, big-endian (left||right) concatenation at each level,
// with an odd leaf duplicated rather than left unpaired — the standard
// Bitcoin-style odd-leaf handling §4.4 names.
func MerkleRoot(data []byte) [32]byte {
	if len(data) == 0 {
		return sha256.Sum256(nil)
	}

	level := make([][32]byte, 0, (len(data)/merkleLeafSize)+1)
	for i := 0; i < len(data); i += merkleLeafSize {
		end := i + merkleLeafSize
		if end > len(data) {
			end = len(data)
		}
		level = append(level, sha256.Sum256(data[i:end]))
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			var buf [64]byte
			copy(buf[:32], level[i][:])
			copy(buf[32:], level[i+1][:])
			next = append(next, sha256.Sum256(buf[:]))
		}
		level = next
	}

	return level[0]
}
