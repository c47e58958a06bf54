package sqlinline

const QSelectIntegrationToken = `--sql 017dc5a4-3b42-4173-a4bd-911771bca196
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql a1c1c17f-fa55-423f-928d-59176f3962ea
insert into integration_tokens (provider, token, properties)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb))
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
