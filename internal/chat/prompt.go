package chat

import (
	"fmt"
	"strings"

	"github.com/vitalpath/coach-gateway/internal/usercontext"
)

// BuildSystemPrompt renders the coach persona plus the user's own numbers.
// The model is told to cite those numbers instead of giving generic advice.
func BuildSystemPrompt(sum usercontext.Summary) string {
	var b strings.Builder

	b.WriteString("Eres el coach de VitalPath, un asistente de nutrición, entrenamiento y bienestar. ")
	b.WriteString("Responde en el idioma del usuario, con un tono cercano y concreto, en 2-4 frases. ")
	b.WriteString("Solo hablas de alimentación, ejercicio, descanso y del uso de la app. ")
	b.WriteString("Basa cada consejo en los datos reales del usuario que siguen; cita sus números en lugar de dar consejos genéricos.\n\n")

	b.WriteString("Datos de hoy:\n")
	if sum.CalorieTarget > 0 {
		fmt.Fprintf(&b, "- Calorías: %d de %d kcal objetivo\n", sum.TodayCalories, sum.CalorieTarget)
	} else {
		fmt.Fprintf(&b, "- Calorías consumidas: %d kcal\n", sum.TodayCalories)
	}
	if sum.LastMeal != nil {
		fmt.Fprintf(&b, "- Última comida: %s (%d kcal)\n", sum.LastMeal.Name, sum.LastMeal.Calories)
	}
	if sum.LastWorkout != nil {
		fmt.Fprintf(&b, "- Último entrenamiento: %s (%d min", sum.LastWorkout.Name, sum.LastWorkout.DurationMin)
		if sum.LastWorkout.PerformanceScore != nil {
			fmt.Fprintf(&b, ", rendimiento %.1f", *sum.LastWorkout.PerformanceScore)
		}
		b.WriteString(")\n")
	}
	fmt.Fprintf(&b, "- Últimos 7 días: %d entrenamientos, %d kcal registradas\n", sum.WeekWorkouts, sum.WeekCalories)

	if len(sum.Insights) > 0 {
		b.WriteString("\nHallazgos personales recientes:\n")
		for _, in := range sum.Insights {
			fmt.Fprintf(&b, "- %s", in.Title)
			if in.KeyEvidence != "" {
				fmt.Fprintf(&b, " | evidencia: %s", in.KeyEvidence)
			}
			if in.Actionable != "" {
				fmt.Fprintf(&b, " | recomendación: %s", in.Actionable)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}
