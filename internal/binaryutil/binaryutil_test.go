package binaryutil

import (
	"math/rand"
	"testing"
)

func TestFindAllBasic(t *testing.T) {
	offsets := FindAll([]byte("abcabcabc"), []byte("abc"))
	if len(offsets) != 3 || offsets[0] != 0 || offsets[1] != 3 || offsets[2] != 6 {
		t.Fatalf("FindAll = %v, want [0 3 6]", offsets)
	}
}

func TestFindAllOverlapping(t *testing.T) {
	offsets := FindAll([]byte("aaaa"), []byte("aa"))
	if len(offsets) != 3 {
		t.Fatalf("FindAll overlapping = %v, want 3 matches", offsets)
	}
}

func TestFindAllLongNeedle(t *testing.T) {
	// exercises the Horspool path (needle length >= 4).
	haystack := []byte("xxFF D8 FF E0 yy FF D8 FF E0 zz")
	offsets := FindAll(haystack, []byte("FF D8 FF E0"))
	if len(offsets) != 2 {
		t.Fatalf("FindAll long needle = %v, want 2 matches", offsets)
	}
}

func TestFindAllEmptyNeedle(t *testing.T) {
	if got := FindAll([]byte("abc"), nil); got != nil {
		t.Errorf("empty needle: got %v, want nil", got)
	}
}

func TestFindAllNeedleLongerThanHaystack(t *testing.T) {
	if got := FindAll([]byte("ab"), []byte("abc")); got != nil {
		t.Errorf("needle longer than haystack: got %v, want nil", got)
	}
}

func TestFindAllConcatenation(t *testing.T) {
	a := []byte("the quick brown fox jumps over")
	b := []byte(" the lazy dog again")
	needle := []byte(" the ")

	full := FindAll(append(append([]byte{}, a...), b...), needle)
	inA := FindAll(a, needle)
	inB := FindAll(b, needle)

	want := map[int]bool{}
	for _, o := range inA {
		want[o] = true
	}
	for _, o := range inB {
		want[len(a)+o] = true
	}

	if len(full) != len(want) {
		t.Fatalf("concatenation property: got %v, want offsets %v", full, want)
	}
	for _, o := range full {
		if !want[o] {
			t.Errorf("offset %d not expected from concatenation property", o)
		}
	}
}

func TestEntropyEmpty(t *testing.T) {
	if e := Entropy(nil); e != 0.0 {
		t.Errorf("Entropy(nil) = %v, want 0", e)
	}
}

func TestEntropyUniform(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	e := Entropy(data)
	if e < 7.99 || e > 8.0 {
		t.Errorf("Entropy(uniform 256) = %v, want ~8.0", e)
	}
}

func TestEntropyConstant(t *testing.T) {
	data := make([]byte, 1000)
	if e := Entropy(data); e != 0.0 {
		t.Errorf("Entropy(constant) = %v, want 0", e)
	}
}

func TestEntropyPermutationInvariant(t *testing.T) {
	data := make([]byte, 500)
	rand.New(rand.NewSource(1)).Read(data)
	e1 := Entropy(data)

	shuffled := append([]byte{}, data...)
	rand.New(rand.NewSource(2)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	e2 := Entropy(shuffled)

	if e1 != e2 {
		t.Errorf("Entropy not permutation-invariant: %v vs %v", e1, e2)
	}
}

func TestSynthesizeName(t *testing.T) {
	got := SynthesizeName(500000, "JPEG")
	want := "recovered_000000000007a120.jpeg"
	if got != want {
		t.Errorf("SynthesizeName = %q, want %q", got, want)
	}
}

func TestCombine(t *testing.T) {
	cases := []struct {
		name                 string
		header, footer, struc bool
		entropy              float64
		want                 float64
	}{
		{"all true full entropy", true, true, true, 7.0, 1.0},
		{"header only", true, false, false, 0.0, 0.4},
		{"half entropy credit", true, false, false, 5.0, 0.5},
		{"no entropy credit", false, false, false, 1.0, 0.0},
		{"footer and structure", false, true, true, 0.0, 0.4},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Combine(c.header, c.footer, c.entropy, c.struc)
			if got != c.want {
				t.Errorf("Combine(%v,%v,%v,%v) = %v, want %v", c.header, c.footer, c.entropy, c.struc, got, c.want)
			}
		})
	}
}

func TestCombineClamped(t *testing.T) {
	// 0.4 + 0.2 + 0.2 + 0.2 = 1.0 exactly; nothing should ever exceed it.
	got := Combine(true, true, 7.0, true)
	if got > 1.0 {
		t.Errorf("Combine exceeded clamp: %v", got)
	}
}
