package analyzer

import "github.com/obdpulse/obdpulse/engine/domain"

// FallbackBaseValue is the book value of any make/model/year not in the
// price table.
const FallbackBaseValue = 15000

var basePrices = map[string]map[int]float64{
	"Toyota Camry":  {2016: 16000, 2017: 18000, 2018: 20000, 2019: 22000, 2020: 24000, 2021: 26000, 2022: 28000, 2023: 30000},
	"Toyota RAV4":   {2019: 24000, 2020: 26000, 2021: 28000, 2022: 30000},
	"Honda Civic":   {2018: 17000, 2019: 18500, 2020: 20000, 2021: 21500, 2022: 23000},
	"Honda Accord":  {2019: 21000, 2020: 23000, 2021: 25000},
	"Ford F-150":    {2019: 30000, 2020: 33000, 2021: 36000},
	"Tesla Model 3": {2020: 32000, 2021: 34000, 2022: 36000},
}

// BaseValue returns the book value of v and whether the table knew it.
func BaseValue(v domain.Vehicle) (float64, bool) {
	years, ok := basePrices[v.Key()]
	if !ok {
		return FallbackBaseValue, false
	}
	price, ok := years[v.Year]
	if !ok {
		return FallbackBaseValue, false
	}
	return price, true
}
