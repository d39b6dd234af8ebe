package types

import (
	"fmt"
	"sort"
)

// ProductGroups is the fixed taxonomy of regulated goods categories keyed
// by the True API group code.
var ProductGroups = map[int]string{
	1:  "Предметы одежды",
	2:  "Обувные товары",
	3:  "Табачная продукция",
	4:  "Духи и туалетная вода",
	5:  "Шины и покрышки",
	6:  "Фотокамеры",
	8:  "Молочная продукция",
	9:  "Велосипеды",
	10: "Медицинские изделия",
	11: "Слабоалкогольные напитки",
	12: "Альтернативная табачная продукция",
	13: "Упакованная вода",
	14: "Товары из натурального меха",
	15: "Пиво",
	17: "БАДы",
	19: "Антисептики",
	21: "Морепродукты",
	22: "Безалкогольное пиво",
	23: "Соковая продукция",
	26: "Ветеринарные препараты",
	27: "Игры и игрушки",
	28: "Радиоэлектронная продукция",
	35: "Парфюмерия и косметика",
	38: "Лекарственные средства",
}

// ProductGroupName resolves a group code to its display name.
func ProductGroupName(code int) (string, bool) {
	name, ok := ProductGroups[code]
	return name, ok
}

// AllProductGroupCodes returns the codes of the full taxonomy. Deployments
// normally narrow this via the products.txt list in the store.
func AllProductGroupCodes() []int {
	codes := make([]int, 0, len(ProductGroups))
	for code := range ProductGroups {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// GroupLabel formats a code with its name for logs.
func GroupLabel(code int) string {
	if name, ok := ProductGroups[code]; ok {
		return fmt.Sprintf("%d (%s)", code, name)
	}
	return fmt.Sprintf("%d (unknown)", code)
}
