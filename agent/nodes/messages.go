package orchestratornode

import (
	"fmt"
	"strings"

	catalogx "github.com/ringlet/callbook/agent/catalog"
	contractx "github.com/ringlet/callbook/agent/contract"
	statex "github.com/ringlet/callbook/agent/state"
	validatex "github.com/ringlet/callbook/agent/validate"
)

// Static reply templates. Every turn ends in exactly one of these so the
// conversation keeps moving even when the model side is degraded.

func promptForStep(step statex.Step, services []catalogx.Service) string {
	switch step {
	case statex.StepCollectName:
		return "Could I grab your full name, please?"
	case statex.StepCollectPhone:
		return "What's the best phone number to reach you on?"
	case statex.StepCollectAddress:
		return "What's the address for the job, including the street number?"
	case statex.StepSelectService:
		if names := catalogx.Names(services); len(names) > 0 {
			return fmt.Sprintf("We offer %s. Which would you like to book?", listNames(names))
		}
		return "Which of our services would you like to book?"
	case statex.StepSelectTime:
		return "When would you like us to come out?"
	default:
		return ""
	}
}

// listNames renders catalog names for speech, "a, b or c".
func listNames(names []string) string {
	if len(names) == 1 {
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
}

func retryPrompt(field contractx.FieldKind, reason validatex.Reason, hours validatex.Hours, services []catalogx.Service) string {
	switch field {
	case contractx.FieldName:
		return "Sorry, I didn't catch your name. Could you say it again for me?"
	case contractx.FieldPhone:
		if reason == validatex.ReasonPhoneMalformed {
			return "That number doesn't look complete. Could you read it out digit by digit?"
		}
		return "Sorry, I missed your phone number. Could you repeat it?"
	case contractx.FieldAddress:
		if reason == validatex.ReasonAddressNoNumber {
			return "I'll need the street number too. Could you give me the full address?"
		}
		return "Sorry, I didn't get the address. Could you say it once more, slowly?"
	case contractx.FieldService:
		if names := catalogx.Names(services); len(names) > 0 {
			return fmt.Sprintf("I'm not sure we offer that one. We have %s. Which were you after?", listNames(names))
		}
		return "I'm not sure we offer that one. Which service were you after?"
	case contractx.FieldTime:
		switch reason {
		case validatex.ReasonTimeInPast:
			return "That time has already passed. When would suit you going forward?"
		case validatex.ReasonTimeOutOfHours:
			return fmt.Sprintf("We take bookings between %d:00 and %d:00. What time in that window works?",
				hours.Open, hours.Close)
		default:
			return "Sorry, I couldn't pin down that time. Could you give me a day and time?"
		}
	default:
		return "Sorry, could you say that again?"
	}
}

func acceptedReply(field contractx.FieldKind, value string, next statex.Step, services []catalogx.Service) string {
	var ack string
	switch field {
	case contractx.FieldName:
		ack = fmt.Sprintf("Thanks, %s.", value)
	case contractx.FieldPhone:
		ack = fmt.Sprintf("Got it, %s.", value)
	case contractx.FieldAddress:
		ack = fmt.Sprintf("Great, %s.", value)
	case contractx.FieldService:
		ack = fmt.Sprintf("%s it is.", value)
	case contractx.FieldTime:
		ack = "Perfect, that time works."
	}
	if prompt := promptForStep(next, services); prompt != "" {
		return ack + " " + prompt
	}
	return ack
}

func degradedReply(field contractx.FieldKind, value string, next statex.Step, services []catalogx.Service) string {
	ack := fmt.Sprintf("I'll note that down as %q and we can double-check it before we book.", value)
	if prompt := promptForStep(next, services); prompt != "" {
		return ack + " " + prompt
	}
	return ack
}

func recapMessage(st *statex.CallState) string {
	var b strings.Builder
	b.WriteString("Let me read that back. ")
	fmt.Fprintf(&b, "Name: %s. Phone: %s. Address: %s.",
		st.UserInfo.Name.Value, st.UserInfo.Phone.Value, st.UserInfo.Address.Value)
	if st.SelectedService != nil {
		fmt.Fprintf(&b, " Service: %s at $%.2f.", st.SelectedService.Name, st.SelectedService.Price)
	}
	if st.SelectedTime != nil {
		fmt.Fprintf(&b, " Time: %s.", st.SelectedTime.StartsAt.Format("Monday 2 January at 3:04 PM"))
	}
	b.WriteString(" Is everything correct?")
	return b.String()
}

func clarifyDispute() string {
	return "No problem, which detail should we fix: your name, phone, address, the service, or the time?"
}

func reaskMessage(step statex.Step) string {
	switch step {
	case statex.StepCollectName:
		return "Let's fix that. What's your correct name?"
	case statex.StepCollectPhone:
		return "Let's fix that. What's the right phone number?"
	case statex.StepCollectAddress:
		return "Let's fix that. What's the correct address?"
	case statex.StepSelectService:
		return "Let's fix that. Which service would you like instead?"
	case statex.StepSelectTime:
		return "Let's fix that. What time would you prefer?"
	default:
		return clarifyDispute()
	}
}

func correctionAck(field contractx.FieldKind, value string, current statex.Step, services []catalogx.Service) string {
	ack := fmt.Sprintf("Thanks, I've updated your %s to %s.", field, value)
	if prompt := promptForStep(current, services); prompt != "" {
		return ack + " " + prompt
	}
	return ack
}

func bookedClosing(st *statex.CallState) string {
	name := st.UserInfo.Name.Value
	service := ""
	if st.SelectedService != nil {
		service = st.SelectedService.Name
	}
	when := ""
	if st.SelectedTime != nil {
		when = st.SelectedTime.StartsAt.Format("Monday 2 January at 3:04 PM")
	}
	return fmt.Sprintf("You're all booked, %s. We'll see you for %s on %s. A confirmation is on its way to you. Thanks for calling!",
		name, service, when)
}

func dispatchFailedClosing() string {
	return "I'm sorry, I couldn't send your confirmation just now. Your details are saved and one of our team will call you back shortly to finish the booking."
}

func collectionFailedClosing(field contractx.FieldKind) string {
	return fmt.Sprintf("I'm sorry, I wasn't able to get your %s over the phone. One of our team will call you back to sort it out. Thanks for your patience.", field)
}

func alreadyClosedReply(st *statex.CallState) string {
	if st.Outcome == statex.OutcomeBooked {
		return "Your booking is already confirmed. Is there anything else I can help with?"
	}
	return "This call has already wrapped up. One of our team will be in touch if anything is outstanding."
}
