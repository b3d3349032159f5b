package service

// FeePercent задаёт комиссию площадки поверх стоимости работ.
const FeePercent = 10

// Price описывает стоимость брони в минорных единицах.
type Price struct {
	HourlyRate int64
	Subtotal   int64
	Fee        int64
	Total      int64
}

// Quote считает стоимость: ставка × длительность, плюс комиссия.
// Дробные минорные единицы округляются до ближайшего целого.
func Quote(hourlyRate int64, durationMinutes int) Price {
	subtotal := divRound(hourlyRate*int64(durationMinutes), 60)
	fee := divRound(subtotal*FeePercent, 100)
	return Price{
		HourlyRate: hourlyRate,
		Subtotal:   subtotal,
		Fee:        fee,
		Total:      subtotal + fee,
	}
}

func divRound(a, b int64) int64 {
	if a < 0 {
		return -divRound(-a, b)
	}
	return (a + b/2) / b
}
