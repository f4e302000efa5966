package dialogue

import (
	"fmt"
	"strings"

	"github.com/GTaccount22/BackendBot/internal/models"
)

// User-facing message templates. The bot speaks Spanish, like the shop it
// fronts for.
const (
	msgGreeting = "Hola 👋, bienvenido a DuoChat, estamos para tu asistencia. Para agendar una cita, ¿cuál es tu nombre?"

	msgInvalidName = "Ese nombre no parece válido 😕. Envíame tu nombre, por favor (mínimo 2 letras)."

	msgAskDateFormat = "¿Para cuándo quieres tu cita de %s? Puedes escribir, por ejemplo: 'mañana a las 15:00' o '25-12-2026 15:00'."

	msgBadDate = "No pude entender la fecha 😕. Prueba con 'mañana a las 15:00' o el formato DD-MM-YYYY HH:MM."

	msgPastDate = "Esa fecha ya pasó. Envíame una fecha futura, por favor."

	msgOutOfHoursFormat = "Atendemos de %02d:00 a %02d:00. Elige una hora dentro de ese horario, por favor."

	msgSlotTaken = "Esa hora ya está reservada 😔. ¿Puedes elegir otra?"

	msgConfirmedFormat = "✅ ¡Listo, %s! Tu cita de %s quedó agendada para el %s."

	msgTurnError = "⚠️ Tuvimos un problema procesando tu mensaje. Inténtalo de nuevo en unos minutos."
)

// greetingForKnownClient greets a returning client by name and hands them
// straight to the menu.
func greetingForKnownClient(name string) string {
	return fmt.Sprintf("Hola de nuevo, %s 👋. ¿Qué servicio deseas agendar?", name)
}

// welcomeForNewClient confirms the stored name before showing the menu.
func welcomeForNewClient(name string) string {
	return fmt.Sprintf("Mucho gusto, %s 🙌. Estos son nuestros servicios:", name)
}

// serviceMenu renders the numbered catalog menu. The numbering follows the
// catalog order, which is what a numeric reply selects against.
func serviceMenu(services []models.Service) string {
	var b strings.Builder
	b.WriteString("Nuestros servicios:\n")
	for i, svc := range services {
		fmt.Fprintf(&b, "%d. %s ($%.2f)\n", i+1, svc.Name, svc.Price)
		if svc.Description != "" {
			fmt.Fprintf(&b, "   %s\n", svc.Description)
		}
	}
	b.WriteString("Responde con el número del servicio que quieres agendar.")
	return b.String()
}

// invalidSelection prefixes the menu with a short correction.
func invalidSelection(services []models.Service) string {
	return "No entendí tu selección 😕.\n" + serviceMenu(services)
}
