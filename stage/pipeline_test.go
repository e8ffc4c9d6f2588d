package stage

import "testing"

func TestPipelineFastPresetSkipsTextStagesWithoutWords(t *testing.T) {
	p := New(nil)
	doc := Document{Text: "", WordCount: 0}

	res := p.Run(nil, "deadbeef", doc, Fast)

	if res.RanMask.Has(Language) || res.RanMask.Has(Readability) || res.RanMask.Has(Keywords) {
		t.Fatalf("text stages should be skipped when word_count == 0, got mask %b", res.RanMask)
	}
	if res.RanMask.Has(PREMIS) == false {
		t.Fatal("PREMIS does not depend on word_count and should still run")
	}
}

func TestPipelineFastPresetRunsOnRealText(t *testing.T) {
	p := New(nil)
	doc := Document{
		Text:      "The quick brown fox jumps over the lazy dog. It runs fast.",
		WordCount: 12,
		RawBytes:  []byte("some bytes"),
		MimeType:  "text/plain",
	}

	res := p.Run(nil, "deadbeef", doc, Fast)

	wantRan := Mask(Language | Readability | Keywords | Citations | PREMIS | MerkleProof | ExactDedup)
	if res.RanMask != wantRan {
		t.Fatalf("RanMask = %b, want %b", res.RanMask, wantRan)
	}
	if res.ContentHash != "deadbeef" {
		t.Fatalf("ContentHash = %q, want %q", res.ContentHash, "deadbeef")
	}
	if res.MerkleRoot == "" {
		t.Fatal("expected a Merkle root to be computed")
	}
}

func TestPipelineMaskFidelityMLStagesWithoutBackend(t *testing.T) {
	p := New(nil)
	doc := Document{Text: "hello world", WordCount: 2}

	res := p.Run(nil, "h", doc, All)

	for _, bit := range []Mask{MultiLangOCR, Whisper, ImageClassify, HandwritingOCR, NER, OCRConfidence} {
		if res.RanMask.Has(bit) {
			t.Fatalf("bit %b should not have run without a backend registry", bit)
		}
		status := res.Status[bit]
		if status.OK {
			t.Fatalf("bit %b status should report not OK when backend is unavailable", bit)
		}
	}
}

func TestPipelineRanMaskIsSubsetOfRequested(t *testing.T) {
	p := New(nil)
	doc := Document{Text: "hello world", WordCount: 2}

	requested := Mask(Language | OCRConfidence)
	res := p.Run(nil, "h", doc, requested)

	if res.RanMask&^requested != 0 {
		t.Fatalf("RanMask %b is not a subset of requested %b", res.RanMask, requested)
	}
}
