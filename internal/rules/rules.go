package rules

import (
	"regexp"
	"strings"

	"credibot/internal/llm"
)

// MainMenu is the greeting and navigation text of the assistant. It is also
// the answer to any request containing the standalone word "menu".
var MainMenu = strings.Join([]string{
	"Buen día, soy German, su asesor virtual de Credicard. Puede hablar o escribir su consulta. ¿En qué puedo ayudarle hoy? Opciones:",
	"1) Tarjetas (activación, PIN, saldos)",
	"2) Compra de terminales POS",
	"3) Soporte técnico",
	"4) Información institucional",
}, "\n")

// SecurityRedirect is returned whenever a loss or theft keyword is present,
// no matter what else the message matches. Card blocking never happens over chat.
const SecurityRedirect = "Para bloqueos por robo/pérdida, llame de inmediato al 0412-XXX-XXXX (24/7). Por seguridad, no procesamos esta solicitud por chat."

const Unrecognized = `No identifiqué su solicitud. Elija una opción (1-4) o escriba "menu" para ver opciones.`

var (
	reMenu     = regexp.MustCompile(`\bmenu\b`)
	reSecurity = regexp.MustCompile(`\b(bloqueo|bloquear|rob(o|ar|aron|ad[ao]|ó)|perd(i|í)|p[eé]rdida)`)

	reCards   = regexp.MustCompile(`(^|\b)(1|tarjeta|tarjetas|pin|saldo|activaci[oó]n)(\b|$)`)
	rePOS     = regexp.MustCompile(`(^|\b)(2|pos|punto de venta|terminal)(\b|$)`)
	reSupport = regexp.MustCompile(`(^|\b)(3|soporte|t[eé]cnico|falla|reparaci[oó]n)(\b|$)`)
	reInfo    = regexp.MustCompile(`(^|\b)(4|informaci[oó]n|institucional|empresa|credicard)(\b|$)`)

	reActivation = regexp.MustCompile(`activaci[oó]n|activar`)
	rePIN        = regexp.MustCompile(`pin|recordar`)
	reBalance    = regexp.MustCompile(`saldo`)
	reModels     = regexp.MustCompile(`nexgo|newpos|k300|verifone|pax|sunmi`)
)

// input is what a rule gets to look at: the normalized text of the latest
// user turn and whether the assistant has spoken before in this session.
type input struct {
	text         string
	hasAssistant bool
}

type rule struct {
	match   func(in input) bool
	respond func(in input) string
}

// Engine maps conversation history to a reply through an ordered rule
// cascade, first match wins. Safety overrides sit in their own list ahead of
// the cascade so their precedence does not depend on source ordering.
type Engine struct {
	overrides []rule
	cascade   []rule
}

func NewEngine() *Engine {
	return &Engine{
		overrides: []rule{
			// Loss/theft is routed to phone support regardless of any other
			// match in the message, including menu navigation.
			{
				match:   func(in input) bool { return reSecurity.MatchString(in.text) },
				respond: func(in input) string { return SecurityRedirect },
			},
		},
		cascade: []rule{
			// Greeting, or explicit return to the menu.
			{
				match:   func(in input) bool { return !in.hasAssistant || reMenu.MatchString(in.text) },
				respond: func(in input) string { return MainMenu },
			},
			{
				match:   func(in input) bool { return reCards.MatchString(in.text) },
				respond: cardsResponse,
			},
			{
				match:   func(in input) bool { return rePOS.MatchString(in.text) },
				respond: func(in input) string { return posResponse },
			},
			{
				match:   func(in input) bool { return reSupport.MatchString(in.text) },
				respond: supportResponse,
			},
			{
				match:   func(in input) bool { return reInfo.MatchString(in.text) },
				respond: func(in input) string { return infoResponse },
			},
		},
	}
}

// Resolve derives a reply from the conversation history. It is deterministic
// and total: every history maps to a non-empty reply.
func (e *Engine) Resolve(history []llm.Message) string {
	in := classify(history)
	for _, r := range e.overrides {
		if r.match(in) {
			return r.respond(in)
		}
	}
	for _, r := range e.cascade {
		if r.match(in) {
			return r.respond(in)
		}
	}
	return Unrecognized
}

func classify(history []llm.Message) input {
	var in input
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			in.text = strings.ToLower(history[i].Content)
			break
		}
	}
	for _, m := range history {
		if m.Role == "assistant" {
			in.hasAssistant = true
			break
		}
	}
	return in
}

// cardsResponse composes the tarjetas sub-menu. Each sub-intent is tested
// independently and appended when present; with no recognizable sub-intent
// the user is asked to disambiguate.
func cardsResponse(in input) string {
	var intents []string
	if reActivation.MatchString(in.text) {
		intents = append(intents,
			"*Activación de tarjeta*\n"+
				"Para activar su tarjeta, necesito:\n"+
				"- Últimos 4 dígitos de la tarjeta\n"+
				"- Número de cédula registrado\n"+
				`Ejemplo: "Activación 4578 28987654"`)
	}
	if rePIN.MatchString(in.text) {
		intents = append(intents,
			"*PIN (recordatorio)*\n"+
				"Opciones:\n"+
				`1) Cajero automático de su banco → "Recordar PIN"`+"\n"+
				`2) App móvil de su banco → Sección "Tarjetas".`+"\n"+
				"No podemos mostrar el PIN por este medio.")
	}
	if reBalance.MatchString(in.text) {
		intents = append(intents,
			"*Consulta de saldo*\n"+
				`Envíe: "Saldo 4578" (últimos 4 dígitos).`+"\n"+
				"Mostraremos un monto aproximado; para el exacto use cajero o app bancaria.")
	}
	if len(intents) == 0 {
		intents = []string{"Indique si desea Activación, PIN o Saldo."}
	}

	parts := []string{"Esta sección aún no cuenta con servicios asociados; replicaré escenarios de conversación."}
	parts = append(parts, intents...)
	parts = append(parts, `Escriba "menu" para volver.`)
	return strings.Join(parts, "\n")
}

var posResponse = strings.Join([]string{
	"Compra de POS — Para iniciar necesito:",
	"- RIF del comercio",
	"- Nombre completo y teléfono de contacto",
	"- Tipo de POS (móvil/inalámbrico/fijo)",
	`Luego deberá completar el proceso presencialmente: "Visite nuestra oficina para finalizar la compra".`,
	`¿Desea comenzar ahora o ver menú? ("menu")`,
}, "\n")

func supportResponse(in input) string {
	modelHint := "Adjunte foto del equipo si puede (solo para identificar el modelo)."
	if reModels.MatchString(in.text) {
		modelHint = "Nota: No mezclo modelos; cada equipo tiene su procedimiento. Si no existe procedimiento para su modelo, se lo indicaré."
	}
	return strings.Join([]string{
		"Soporte técnico — Para abrir un ticket, envíe:",
		"- Código de afiliación y número de terminal",
		"- Marca, modelo y serial del POS",
		"- Descripción breve de la falla",
		"- Teléfono de contacto",
		modelHint,
		`¿Desea continuar o volver al menú? ("menu")`,
	}, "\n")
}

var infoResponse = strings.Join([]string{
	"Información institucional — ¿Qué desea saber?",
	"- ¿Quién es Credicard?",
	"- CredicardPagos (POS virtual)",
	"- Adquirencia / Emisión de tarjetas",
	"- Soluciones tecnofinancieras",
	"- Oficinas y contacto",
	`Escriba "menu" para volver.`,
}, "\n")
