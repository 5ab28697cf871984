package normalization

import "sort"

// FuzzyMatcher вычисляет схожесть строк для подбора кандидатов-городов.
// Реализует метрику совпадающих блоков (аналог SequenceMatcher.ratio):
// 2*M/T, где M — суммарная длина совпадающих блоков, T — суммарная длина строк.
type FuzzyMatcher struct{}

// NewFuzzyMatcher создает новый экземпляр
func NewFuzzyMatcher() *FuzzyMatcher {
	return &FuzzyMatcher{}
}

// Ratio возвращает коэффициент схожести двух строк в диапазоне [0, 1]
func (fm *FuzzyMatcher) Ratio(a, b string) float64 {
	ar := []rune(a)
	br := []rune(b)
	total := len(ar) + len(br)
	if total == 0 {
		return 1.0
	}
	matched := fm.matchingTotal(ar, br, 0, len(ar), 0, len(br))
	return 2.0 * float64(matched) / float64(total)
}

// matchingTotal рекурсивно суммирует длины совпадающих блоков:
// находится самый длинный общий блок, затем обрабатываются участки слева и справа
func (fm *FuzzyMatcher) matchingTotal(a, b []rune, alo, ahi, blo, bhi int) int {
	i, j, size := fm.longestMatch(a, b, alo, ahi, blo, bhi)
	if size == 0 {
		return 0
	}
	total := size
	total += fm.matchingTotal(a, b, alo, i, blo, j)
	total += fm.matchingTotal(a, b, i+size, ahi, j+size, bhi)
	return total
}

// longestMatch находит самый длинный общий блок в a[alo:ahi] и b[blo:bhi].
// При равной длине предпочитается блок, начинающийся раньше в a, затем в b.
func (fm *FuzzyMatcher) longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestsize int) {
	b2j := make(map[rune][]int, bhi-blo)
	for j := blo; j < bhi; j++ {
		b2j[b[j]] = append(b2j[b[j]], j)
	}

	besti, bestj, bestsize = alo, blo, 0
	j2len := make(map[int]int)
	for i := alo; i < ahi; i++ {
		newj2len := make(map[int]int)
		for _, j := range b2j[a[i]] {
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}
	return besti, bestj, bestsize
}

// scoredCandidate кандидат с коэффициентом схожести
type scoredCandidate struct {
	ratio float64
	value string
}

// TopCandidates возвращает до topN строк из пула со схожестью >= cutoff,
// отсортированных по убыванию коэффициента. Пул обходится в отсортированном
// порядке, чтобы результат был детерминированным.
func (fm *FuzzyMatcher) TopCandidates(src string, pool []string, cutoff float64, topN int) []string {
	if len(pool) == 0 || topN <= 0 {
		return nil
	}

	sorted := make([]string, len(pool))
	copy(sorted, pool)
	sort.Strings(sorted)

	var scored []scoredCandidate
	for _, p := range sorted {
		ratio := fm.Ratio(src, p)
		if ratio >= cutoff {
			scored = append(scored, scoredCandidate{ratio: ratio, value: p})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].ratio > scored[j].ratio
	})

	if len(scored) > topN {
		scored = scored[:topN]
	}
	out := make([]string, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.value)
	}
	return out
}
