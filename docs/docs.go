// Package docs holds the OpenAPI document served by the Swagger UI. It is
// maintained by hand in swag's registration layout; keep it in step with the
// handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {
                "description": "Returns service status",
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}}
            }
        },
        "/api/v1/billing/webhook/stripe": {
            "post": {
                "description": "Receives Stripe events. The raw body is verified against the Stripe-Signature header.\nReturns 400 on an invalid signature and 500 when the event should be redelivered.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Webhook"],
                "summary": "Stripe webhook",
                "parameters": [
                    {"type": "string", "description": "Stripe signature header", "name": "Stripe-Signature", "in": "header", "required": true},
                    {"description": "Raw Stripe event", "name": "payload", "in": "body", "required": true, "schema": {"type": "string"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespWebhookAck"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.RespOK"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.RespWebhookAck"}}
                }
            }
        },
        "/api/v1/billing/subscription/ensure": {
            "post": {
                "description": "Returns the company's subscription, creating the FREE trial default on first call.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Billing"],
                "summary": "Ensure subscription",
                "parameters": [{"description": "Company", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CompanyRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespSubscription"}}}
            }
        },
        "/api/v1/billing/subscription": {
            "post": {
                "description": "Subscribes the company to a plan directly and synchronizes the result.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Billing"],
                "summary": "Create subscription",
                "parameters": [{"description": "Subscription request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/billing.CreateSubscriptionRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespSubscription"}}}
            }
        },
        "/api/v1/billing/subscription/cancel": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Billing"],
                "summary": "Cancel subscription",
                "parameters": [{"description": "Company", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CompanyRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespSubscription"}}}
            }
        },
        "/api/v1/billing/checkout_session": {
            "post": {
                "description": "Opens a hosted Stripe checkout for a configured plan.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Billing"],
                "summary": "Create checkout session",
                "parameters": [{"description": "Checkout request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/billing.CheckoutRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespCheckout"}}}
            }
        },
        "/api/v1/billing/sweep": {
            "post": {
                "description": "Backfills the company's paid invoices that are missing from the ledger.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Billing"],
                "summary": "Sweep now",
                "parameters": [{"description": "Company", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CompanyRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespSweep"}}}
            }
        },
        "/api/v1/admin/list_company_payments": {
            "post": {
                "security": [{"AdminBearer": []}],
                "description": "Paginated, filterable list of a company's payment records, newest first.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List company payments (Admin)",
                "parameters": [{"description": "Company, filters and pagination", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ListPaymentsRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespListPayments"}}}
            }
        },
        "/api/v1/admin/get_statistic": {
            "post": {
                "security": [{"AdminBearer": []}],
                "description": "Daily revenue, payment counts and subscription counts.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Get billing statistics (Admin)",
                "parameters": [{"description": "Statistic request parameters", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/statistics.Request"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespStatistic"}}}
            }
        },
        "/api/v1/admin/webhook_events": {
            "get": {
                "security": [{"AdminBearer": []}],
                "description": "Journal of received processor events, newest first. Use status=dead_lettered to find replay candidates.",
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List webhook events (Admin)",
                "parameters": [
                    {"type": "string", "description": "received, handled, skipped, unresolved, failed or dead_lettered", "name": "status", "in": "query"},
                    {"type": "string", "description": "Stripe event type", "name": "event_type", "in": "query"},
                    {"type": "integer", "description": "Offset", "name": "from", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespListWebhookEvents"}}}
            }
        },
        "/api/v1/admin/webhook_events/{event_id}/replay": {
            "post": {
                "security": [{"AdminBearer": []}],
                "description": "Re-dispatches a journalled event, typically one that was dead-lettered.",
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Replay webhook event (Admin)",
                "parameters": [{"type": "string", "description": "Stripe event id", "name": "event_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespWebhookAck"}}}
            }
        }
    },
    "definitions": {
        "billing.CheckoutRequest": {
            "type": "object",
            "properties": {"company_id": {"type": "string"}, "email": {"type": "string"}, "price_id": {"type": "string"}, "seats": {"type": "integer"}}
        },
        "billing.CreateSubscriptionRequest": {
            "type": "object",
            "properties": {"company_id": {"type": "string"}, "email": {"type": "string"}, "price_id": {"type": "string"}, "seats": {"type": "integer"}}
        },
        "billing.CheckoutResult": {
            "type": "object",
            "properties": {"session_id": {"type": "string"}, "url": {"type": "string"}}
        },
        "handlers.CompanyRequest": {
            "type": "object",
            "required": ["company_id"],
            "properties": {"company_id": {"type": "string"}}
        },
        "handlers.ListPaymentsRequest": {
            "type": "object",
            "required": ["company_id"],
            "properties": {
                "company_id": {"type": "string"},
                "filters": {"type": "array", "items": {"$ref": "#/definitions/types.CommonFilter"}},
                "from": {"type": "integer"},
                "size": {"type": "integer"}
            }
        },
        "handlers.PaymentItem": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "external_invoice_id": {"type": "string"},
                "external_subscription_id": {"type": "string"},
                "invoice_number": {"type": "string"},
                "amount": {"type": "integer"},
                "amount_display": {"type": "string"},
                "status": {"type": "string"},
                "description": {"type": "string"},
                "period_start": {"type": "string"},
                "period_end": {"type": "string"},
                "recorded_at": {"type": "string"}
            }
        },
        "handlers.ListPaymentsResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/handlers.PaymentItem"}},
                "total": {"type": "integer"},
                "succeeded_amount": {"type": "integer"},
                "succeeded_amount_display": {"type": "string"}
            }
        },
        "handlers.WebhookAck": {
            "type": "object",
            "properties": {
                "event_id": {"type": "string"},
                "event_type": {"type": "string"},
                "outcome": {"type": "string"},
                "reason": {"type": "string"},
                "attempts": {"type": "integer"},
                "dead_lettered": {"type": "boolean"}
            }
        },
        "handlers.RespOK": {
            "type": "object",
            "properties": {"code": {"type": "integer"}, "message": {"type": "string"}, "data": {}}
        },
        "handlers.RespWebhookAck": {
            "type": "object",
            "properties": {"code": {"type": "integer"}, "message": {"type": "string"}, "data": {"$ref": "#/definitions/handlers.WebhookAck"}}
        },
        "handlers.RespSubscription": {
            "type": "object",
            "properties": {"code": {"type": "integer"}, "message": {"type": "string"}, "data": {"$ref": "#/definitions/models.Subscription"}}
        },
        "handlers.RespCheckout": {
            "type": "object",
            "properties": {"code": {"type": "integer"}, "message": {"type": "string"}, "data": {"$ref": "#/definitions/billing.CheckoutResult"}}
        },
        "handlers.RespSweep": {
            "type": "object",
            "properties": {"code": {"type": "integer"}, "message": {"type": "string"}, "data": {"type": "object", "properties": {"backfilled": {"type": "integer"}}}}
        },
        "handlers.RespListPayments": {
            "type": "object",
            "properties": {"code": {"type": "integer"}, "message": {"type": "string"}, "data": {"$ref": "#/definitions/handlers.ListPaymentsResponse"}}
        },
        "handlers.RespStatistic": {
            "type": "object",
            "properties": {"code": {"type": "integer"}, "message": {"type": "string"}, "data": {"$ref": "#/definitions/statistics.Response"}}
        },
        "handlers.RespListWebhookEvents": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "message": {"type": "string"},
                "data": {"type": "object", "properties": {"items": {"type": "array", "items": {"$ref": "#/definitions/models.WebhookEventLog"}}, "total": {"type": "integer"}}}
            }
        },
        "models.Subscription": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "company_id": {"type": "string"},
                "plan_tier": {"type": "string"},
                "price_per_seat": {"type": "string"},
                "seat_count": {"type": "integer"},
                "billing_cycle": {"type": "string"},
                "status": {"type": "string"},
                "next_billing_at": {"type": "string"},
                "external_customer_id": {"type": "string"},
                "external_subscription_id": {"type": "string"},
                "external_price_id": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "models.WebhookEventLog": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "provider_id": {"type": "string"},
                "event_id": {"type": "string"},
                "event_type": {"type": "string"},
                "trace_id": {"type": "string"},
                "attempts": {"type": "integer"},
                "status": {"type": "string"},
                "result": {"type": "object"},
                "last_error": {"type": "string"},
                "event_at": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "statistics.Request": {
            "type": "object",
            "properties": {
                "filters": {"type": "array", "items": {"$ref": "#/definitions/types.CommonFilter"}},
                "data_items": {"type": "array", "items": {"type": "object", "properties": {"id": {"type": "string"}}}}
            }
        },
        "statistics.Response": {
            "type": "object",
            "properties": {
                "data_items": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "array",
                        "items": {
                            "type": "object",
                            "properties": {"date": {"type": "string"}, "value": {"type": "integer"}, "value2": {"type": "integer"}, "value3": {"type": "integer"}, "display": {"type": "string"}}
                        }
                    }
                }
            }
        },
        "types.CommonFilter": {
            "type": "object",
            "properties": {
                "field": {"type": "string"},
                "operator": {"type": "string", "enum": ["eq", "not_eq", "lt", "lte", "gt", "gte", "range", "in"]},
                "values": {"type": "array", "items": {}}
            }
        }
    },
    "securityDefinitions": {
        "AdminBearer": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8888",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Billing Reconciliation API",
	Description:      "Keeps the local subscription and payment ledger consistent with Stripe.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
