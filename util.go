package crud

import (
	"strconv"
	"strings"
)

func Map[In any, Out any](list []In, mapFn func(val In) Out) []Out {
	var newSlice = make([]Out, len(list))
	for i, val := range list {
		newSlice[i] = mapFn(val)
	}

	return newSlice
}

func Filter[T any](slice []T, filterFunc func(val T) bool) []T {
	var newSlice []T
	for i, val := range slice {
		if filterFunc(val) {
			newSlice = append(newSlice, slice[i])
		}
	}

	return newSlice
}

func SliceContains[T comparable](list []T, val T) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}

	return false
}

// ParseDBTag reads the field grammar used in `db` struct tags:
// `db:"name,key auto allownull size=N"`.
func ParseDBTag(value string) (name string, size int, isAuto bool, isKey bool, allowNull bool) {
	tagArr := strings.Split(value, ",")
	if len(tagArr) == 0 {
		return
	}

	checkBool := func(key string, tagarr []string) bool {
		bval := false
		skey := strings.TrimSpace(tagarr[0])
		if strings.EqualFold(skey, key) {
			bval = true
		}

		if len(tagarr) > 1 {
			sval := strings.TrimSpace(tagarr[1])
			if strings.EqualFold(sval, "true") {
				bval = true
			}

			if strings.EqualFold(sval, "false") {
				bval = false
			}
		}

		return bval
	}

	name = strings.TrimSpace(tagArr[0])
	if len(tagArr) > 1 {
		det := strings.Split(tagArr[1], " ")
		for _, v := range det {
			varr := strings.Split(v, "=")
			key := strings.TrimSpace(varr[0])

			if checkBool("auto", varr) {
				isAuto = true
				continue
			}

			if checkBool("key", varr) {
				isKey = true
				allowNull = false
				continue
			}

			if checkBool("allownull", varr) {
				allowNull = true && !isKey
				continue
			}

			if len(varr) > 1 {
				if strings.EqualFold(key, "size") {
					size, _ = strconv.Atoi(varr[1])
				}
			}
		}
	}

	return
}
