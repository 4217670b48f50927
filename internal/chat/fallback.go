package chat

import (
	"fmt"
	"strings"

	"github.com/vitalpath/coach-gateway/internal/usercontext"
)

// OutOfScopeReply is the canned answer for rejected off-domain messages.
const OutOfScopeReply = "Solo puedo ayudarte con temas de nutrición, entrenamiento, " +
	"descanso y el uso de VitalPath. ¿Quieres que revisemos tus comidas o tu " +
	"entrenamiento de hoy?"

// BuildFallbackReply produces the deterministic degraded answer used when the
// model call fails or times out. It never fails: it works with whatever parts
// of the summary are present and says plainly that it is a short answer.
func BuildFallbackReply(sum usercontext.Summary) string {
	var b strings.Builder

	b.WriteString("Ahora mismo no puedo darte una respuesta completa, así que te dejo lo esencial de tus datos. ")

	if sum.CalorieTarget > 0 {
		fmt.Fprintf(&b, "Hoy llevas %d de %d kcal. ", sum.TodayCalories, sum.CalorieTarget)
	} else if sum.TodayCalories > 0 {
		fmt.Fprintf(&b, "Hoy llevas %d kcal registradas. ", sum.TodayCalories)
	}
	if sum.LastWorkout != nil {
		fmt.Fprintf(&b, "Tu último entrenamiento fue \"%s\". ", sum.LastWorkout.Name)
	}

	b.WriteString("Inténtalo de nuevo en un momento o hazme una pregunta más concreta.")
	return b.String()
}
