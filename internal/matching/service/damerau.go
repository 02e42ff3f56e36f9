package service

// damerauLevenshtein is the optimal string alignment distance over runes.
func damerauLevenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	al, bl := len(ra), len(rb)

	dp := make([][]int, al+1)
	for i := 0; i <= al; i++ {
		dp[i] = make([]int, bl+1)
		dp[i][0] = i
	}
	for j := 0; j <= bl; j++ {
		dp[0][j] = j
	}

	for i := 1; i <= al; i++ {
		for j := 1; j <= bl; j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			// insertion / deletion / substitution
			dp[i][j] = min(dp[i-1][j]+1, dp[i][j-1]+1, dp[i-1][j-1]+cost)

			// adjacent transposition
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				if v := dp[i-2][j-2] + 1; v < dp[i][j] {
					dp[i][j] = v
				}
			}
		}
	}
	return dp[al][bl]
}

// similarity is the Damerau-Levenshtein distance scaled into [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	d := damerauLevenshtein(a, b)
	m := max(len([]rune(a)), len([]rune(b)))
	return 1 - float64(d)/float64(m)
}

func tokenSortSimilarity(a, b string) float64 {
	return similarity(tokenSort(a), tokenSort(b))
}

// bestSimilarity tolerates both typos and word order.
func bestSimilarity(a, b string) float64 {
	return max(similarity(a, b), tokenSortSimilarity(a, b))
}
