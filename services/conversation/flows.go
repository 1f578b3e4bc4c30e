package conversation

import (
	"strconv"
	"strings"
	"time"

	"tripbot/models"
	"tripbot/utils"
)

// skipWord lets users skip optional steps, currently only the return date.
const skipWord = "skip"

// step is one question in a collection flow. validate normalizes the answer
// and stores it in the session criteria, or returns a ValidationError so the
// same question is asked again.
type step struct {
	field    string
	validate func(svc *DefaultConversationService, sess *models.Session, input string) (string, error)
}

func flowSteps(flow string) []step {
	switch flow {
	case models.FlowFlight:
		return flightSteps
	case models.FlowHotel:
		return hotelSteps
	case models.FlowAlert:
		return alertSteps
	}
	return nil
}

// stepIndex finds the position of a field in the flow, -1 when unknown.
func stepIndex(flow, field string) int {
	for i, st := range flowSteps(flow) {
		if st.field == field {
			return i
		}
	}
	return -1
}

var flightSteps = []step{
	{field: "from_city", validate: cityStep},
	{field: "to_city", validate: destinationStep},
	{field: "depart_date", validate: futureDateStep},
	{field: "return_date", validate: returnDateStep},
	{field: "passengers", validate: passengersStep},
}

var hotelSteps = []step{
	{field: "city", validate: cityStep},
	{field: "checkin_date", validate: futureDateStep},
	{field: "checkout_date", validate: checkoutStep},
	{field: "rooms", validate: countStep(1, 10)},
	{field: "guests", validate: countStep(1, 20)},
}

var alertSteps = []step{
	{field: "alert_type", validate: alertTypeStep},
	{field: "target_price", validate: targetPriceStep},
}

func cityStep(svc *DefaultConversationService, sess *models.Session, input string) (string, error) {
	city, err := utils.NormalizeCity(input)
	if err != nil {
		return "", invalid(sess.Step, err.Error())
	}
	return city, nil
}

func destinationStep(svc *DefaultConversationService, sess *models.Session, input string) (string, error) {
	city, err := utils.NormalizeCity(input)
	if err != nil {
		return "", invalid("to_city", err.Error())
	}
	if strings.EqualFold(city, sess.Criteria["from_city"]) {
		return "", invalid("to_city", "destination must differ from origin")
	}
	return city, nil
}

func futureDateStep(svc *DefaultConversationService, sess *models.Session, input string) (string, error) {
	d, err := utils.ParseFutureDate(input, svc.now())
	if err != nil {
		return "", invalid(sess.Step, err.Error())
	}
	return d.Format(utils.DateLayout), nil
}

func returnDateStep(svc *DefaultConversationService, sess *models.Session, input string) (string, error) {
	if strings.EqualFold(strings.TrimSpace(input), skipWord) {
		return "", nil
	}
	d, err := utils.ParseFutureDate(input, svc.now())
	if err != nil {
		return "", invalid("return_date", err.Error())
	}
	depart, _ := time.Parse(utils.DateLayout, sess.Criteria["depart_date"])
	if d.Before(depart) {
		return "", invalid("return_date", "return date must be on or after the departure date")
	}
	return d.Format(utils.DateLayout), nil
}

func checkoutStep(svc *DefaultConversationService, sess *models.Session, input string) (string, error) {
	d, err := utils.ParseFutureDate(input, svc.now())
	if err != nil {
		return "", invalid("checkout_date", err.Error())
	}
	checkin, _ := time.Parse(utils.DateLayout, sess.Criteria["checkin_date"])
	if !d.After(checkin) {
		return "", invalid("checkout_date", "checkout must be after checkin")
	}
	return d.Format(utils.DateLayout), nil
}

func passengersStep(svc *DefaultConversationService, sess *models.Session, input string) (string, error) {
	n, err := utils.ParseCount(input, 1, svc.MaxPassengers)
	if err != nil {
		return "", invalid("passengers", err.Error())
	}
	return strconv.Itoa(n), nil
}

func countStep(min, max int) func(*DefaultConversationService, *models.Session, string) (string, error) {
	return func(svc *DefaultConversationService, sess *models.Session, input string) (string, error) {
		n, err := utils.ParseCount(input, min, max)
		if err != nil {
			return "", invalid(sess.Step, err.Error())
		}
		return strconv.Itoa(n), nil
	}
}

func alertTypeStep(svc *DefaultConversationService, sess *models.Session, input string) (string, error) {
	kind := strings.ToLower(strings.TrimSpace(input))
	if kind != models.KindFlight && kind != models.KindHotel {
		return "", invalid("alert_type", "choose flight or hotel")
	}
	last, err := svc.Searches.LatestByUser(sess.UserID, kind)
	if err != nil {
		return "", err
	}
	if last == nil {
		return "", invalid("alert_type", "run a "+kind+" search first so the alert knows what to watch")
	}
	return kind, nil
}

func targetPriceStep(svc *DefaultConversationService, sess *models.Session, input string) (string, error) {
	price, err := utils.ParsePrice(input)
	if err != nil {
		return "", invalid("target_price", err.Error())
	}
	return strconv.FormatFloat(price, 'f', 2, 64), nil
}
