package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Typed wrappers over the consumed ledger REST surface.

type ClientCreateRequest struct {
	FirstName      string `json:"firstname"`
	MiddleName     string `json:"middlename,omitempty"`
	LastName       string `json:"lastname"`
	ExternalID     string `json:"externalId"`
	MobileNo       string `json:"mobileNo,omitempty"`
	EmailAddress   string `json:"emailAddress,omitempty"`
	OfficeID       int64  `json:"officeId"`
	Active         bool   `json:"active"`
	ActivationDate string `json:"activationDate,omitempty"`
	DateFormat     string `json:"dateFormat,omitempty"`
	Locale         string `json:"locale,omitempty"`
}

type ClientResource struct {
	ID         int64  `json:"clientId"`
	ResourceID int64  `json:"resourceId"`
	AccountNo  string `json:"accountNo"`
	ExternalID string `json:"externalId"`
}

// ClientID returns whichever id field the ledger populated.
func (c ClientResource) ClientID() int64 {
	if c.ID != 0 {
		return c.ID
	}
	return c.ResourceID
}

type LoanCreateRequest struct {
	ClientID             int64   `json:"clientId"`
	ProductID            int64   `json:"productId"`
	Principal            float64 `json:"principal"`
	LoanTermFrequency    int     `json:"loanTermFrequency"`
	LoanTermFrequencyType int    `json:"loanTermFrequencyType"`
	NumberOfRepayments   int     `json:"numberOfRepayments"`
	InterestRatePerPeriod float64 `json:"interestRatePerPeriod"`
	ExternalID           string  `json:"externalId"`
	ExpectedDisbursementDate string `json:"expectedDisbursementDate,omitempty"`
	SubmittedOnDate      string  `json:"submittedOnDate,omitempty"`
	DateFormat           string  `json:"dateFormat,omitempty"`
	Locale               string  `json:"locale,omitempty"`
}

type LoanResource struct {
	ID         int64  `json:"loanId"`
	ResourceID int64  `json:"resourceId"`
	AccountNo  string `json:"accountNo"`
	Status     struct {
		Value  string `json:"value"`
		Active bool   `json:"active"`
	} `json:"status"`
	Summary struct {
		TotalOutstanding        float64 `json:"totalOutstanding"`
		TotalExpectedRepayment  float64 `json:"totalExpectedRepayment"`
		PrincipalOutstanding    float64 `json:"principalOutstanding"`
		InterestOutstanding     float64 `json:"interestOutstanding"`
	} `json:"summary"`
	Timeline struct {
		ExpectedMaturityDate string `json:"expectedMaturityDate"`
		ActualDisbursementDate string `json:"actualDisbursementDate"`
	} `json:"timeline"`
	RepaymentSchedule json.RawMessage `json:"repaymentSchedule,omitempty"`
	Transactions      json.RawMessage `json:"transactions,omitempty"`
}

func (l LoanResource) LoanID() int64 {
	if l.ID != 0 {
		return l.ID
	}
	return l.ResourceID
}

// CreateClient onboards a new client on the ledger.
func (c *Client) CreateClient(ctx context.Context, req ClientCreateRequest) (*ClientResource, error) {
	resp, err := c.Request(ctx, http.MethodPost, "/clients", req)
	if err != nil {
		return nil, err
	}
	return decode[ClientResource](resp)
}

// SearchClientByExternalID looks a client up by its external id (the
// employer-protocol check number).
func (c *Client) SearchClientByExternalID(ctx context.Context, externalID string) (*ClientResource, error) {
	resp, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/clients?externalId=%s", externalID), nil)
	if err != nil {
		return nil, err
	}
	var page struct {
		TotalFilteredRecords int              `json:"totalFilteredRecords"`
		PageItems            []ClientResource `json:"pageItems"`
	}
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, fmt.Errorf("unparseable client search response: %w", err)
	}
	if len(page.PageItems) == 0 {
		return nil, nil
	}
	return &page.PageItems[0], nil
}

// CreateOnboarding posts the custom onboarding sub-resource for a client.
func (c *Client) CreateOnboarding(ctx context.Context, clientID int64, payload map[string]interface{}) error {
	_, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/clients/%d/onboarding", clientID), payload)
	return err
}

// CreateLoan creates a loan in submitted-and-pending-approval state.
func (c *Client) CreateLoan(ctx context.Context, req LoanCreateRequest) (*LoanResource, error) {
	resp, err := c.Request(ctx, http.MethodPost, "/loans", req)
	if err != nil {
		return nil, err
	}
	return decode[LoanResource](resp)
}

// ApproveLoan approves a pending loan.
func (c *Client) ApproveLoan(ctx context.Context, loanID int64, approvedAmount float64, approvedOnDate string) error {
	body := map[string]interface{}{
		"approvedLoanAmount": approvedAmount,
		"approvedOnDate":     approvedOnDate,
		"dateFormat":         "dd MMMM yyyy",
		"locale":             "en",
	}
	_, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/loans/%d?command=approve", loanID), body)
	return err
}

// DisburseLoan disburses an approved loan.
func (c *Client) DisburseLoan(ctx context.Context, loanID int64, amount float64, disbursedOnDate string) error {
	body := map[string]interface{}{
		"transactionAmount":  amount,
		"actualDisbursementDate": disbursedOnDate,
		"dateFormat":         "dd MMMM yyyy",
		"locale":             "en",
	}
	_, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/loans/%d?command=disburse", loanID), body)
	return err
}

// RejectLoan rejects a pending loan on the ledger.
func (c *Client) RejectLoan(ctx context.Context, loanID int64, rejectedOnDate, note string) error {
	body := map[string]interface{}{
		"rejectedOnDate": rejectedOnDate,
		"note":           note,
		"dateFormat":     "dd MMMM yyyy",
		"locale":         "en",
	}
	_, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/loans/%d?command=reject", loanID), body)
	return err
}

// GetLoan fetches a loan, optionally with its repayment schedule and
// transaction associations.
func (c *Client) GetLoan(ctx context.Context, loanID int64, withAssociations bool) (*LoanResource, error) {
	path := fmt.Sprintf("/loans/%d", loanID)
	if withAssociations {
		path += "?associations=repaymentSchedule,transactions"
	}
	resp, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return decode[LoanResource](resp)
}

// GetLoanProduct fetches a loan product definition.
func (c *Client) GetLoanProduct(ctx context.Context, productID int64) (map[string]interface{}, error) {
	resp, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/loanproducts/%d", productID), nil)
	if err != nil {
		return nil, err
	}
	var product map[string]interface{}
	if err := json.Unmarshal(resp.Body, &product); err != nil {
		return nil, fmt.Errorf("unparseable loan product response: %w", err)
	}
	return product, nil
}

// CreateReschedule opens a loan reschedule request.
func (c *Client) CreateReschedule(ctx context.Context, loanID int64, payload map[string]interface{}) (*Response, error) {
	payload["loanId"] = loanID
	return c.Request(ctx, http.MethodPost, "/rescheduleloans", payload)
}

// ApproveReschedule approves a pending reschedule request.
func (c *Client) ApproveReschedule(ctx context.Context, rescheduleID int64, approvedOnDate string) error {
	body := map[string]interface{}{
		"approvedOnDate": approvedOnDate,
		"dateFormat":     "dd MMMM yyyy",
		"locale":         "en",
	}
	_, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/rescheduleloans/%d?command=approve", rescheduleID), body)
	return err
}

// RejectReschedule rejects a pending reschedule request.
func (c *Client) RejectReschedule(ctx context.Context, rescheduleID int64, rejectedOnDate string) error {
	body := map[string]interface{}{
		"rejectedOnDate": rejectedOnDate,
		"dateFormat":     "dd MMMM yyyy",
		"locale":         "en",
	}
	_, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/rescheduleloans/%d?command=reject", rescheduleID), body)
	return err
}

func decode[T any](resp *Response) (*T, error) {
	var out T
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("unparseable ledger response: %w", err)
	}
	return &out, nil
}
