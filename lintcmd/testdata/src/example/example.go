package example

func at(s []int, i int) int {
	return s[i]
}

func first(s []int) int {
	return s[0]
}

func use() int {
	s := make([]int, 4)
	return at(s, 4) + at(s, 3) + first(s)
}

func loop(s []int) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n += s[i]
	}
	return n
}
