package a

func overrun() {
	var a [10]int
	i := 10
	a[i] = 1 // want `buffer overrun: index \[10, 10\], size \[10, 10\]`
}

func underrun() int {
	s := make([]int, 5)
	i := -1
	return s[i] // want `buffer underrun: index \[-1, -1\]`
}

func sum(s []int) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n += s[i]
	}
	return n
}

func fill(s []int) {
	for i := range s {
		s[i] = i
	}
}

func offByOne(s []int) {
	for i := 0; i <= len(s); i++ {
		s[i] = 0 // want `buffer access not proven safe|possible buffer overrun`
	}
}

func get(s []int, i int) int {
	return s[i] // want `possible buffer overrun`
}

func callGet() int {
	s := make([]int, 4)
	_ = get(s, 3)
	_ = get(s, -1) // want `buffer underrun: index \[-1, -1\]`
	return get(s, 4) // want `buffer overrun: index \[4, 4\], size \[4, 4\]`
}

func guarded(s []int, i int) int {
	if i >= 0 && i < len(s) {
		return s[i]
	}
	return -1
}

func checked(s []int, i int) int {
	if i < 0 || i >= len(s) {
		panic("index out of range")
	}
	return s[i]
}

func window() int {
	var buf [8]byte
	s := buf[2:]
	return int(s[6]) // want `buffer overrun: index \[8, 8\]`
}

func negativeMake() []int {
	n := -1
	return make([]int, n) // want `array size may be non-positive: \[-1, -1\]`
}
